package ai

import (
	"fmt"
	"time"

	"github.com/midaslabs/reimburse/internal/models"
)

// buildDecisionSystemPrompt embeds the resolved policy and the current date
// into the judge's instructions. The model is told to ignore transaction
// dates: receipts are evaluated on content only, not staleness.
func buildDecisionSystemPrompt(policy models.Policy, now time.Time) string {
	return fmt.Sprintf(
		"You are an assistant helping with reimbursement requests. "+
			"Analyze the receipt and decide whether to 'Approve' or 'Reject' the request.\n\n"+
			"The spending policy for this group is:\n"+
			"- Allowed category: %s\n"+
			"- Maximum amount per request: %.2f\n"+
			"- Request frequency limit: %d times per %d days\n\n"+
			"Today's date is %s. Do not consider the dates or any date-related "+
			"information when processing your decision. Focus solely on the content provided.\n\n"+
			"Please respond in the following format:\n\n"+
			"Decision: [Approve/Reject]\n"+
			"Category: [Expense category]\n"+
			"Amount: [Total amount on the receipt]\n"+
			"Feedback: [Your explanation here]\n\n"+
			"Please avoid using ambiguous language that might put the decision in doubt.",
		policy.Category,
		policy.MaxAmount,
		policy.Frequency.Times,
		policy.Frequency.WindowDays,
		now.Format("2006-01-02"),
	)
}

// buildDecisionUserPrompt wraps the extracted content, image or text.
func buildDecisionUserPrompt(content models.ExtractedContent, details string) string {
	header := ""
	if details != "" {
		header = fmt.Sprintf("Request details: %s\n\n", details)
	}
	if content.IsImage {
		return fmt.Sprintf("%sPlease analyze this receipt image in base64 format:\n\n%s",
			header, content.ImageBase64)
	}
	return fmt.Sprintf("%sHere is the document content:\n\n%s", header, content.Text)
}

// buildPolicyExtractionPrompt asks for the fixed JSON shape the resolver
// falls back from field by field.
func buildPolicyExtractionPrompt(policyText string) string {
	return fmt.Sprintf(
		"Extract the spending policy fields from the following policy document. "+
			"Respond with ONLY a valid JSON object (no markdown, no explanation) "+
			"with this exact structure:\n"+
			"{\"category\": string, \"amount\": number, \"frequency\": {\"times\": number, \"days\": number}}\n\n"+
			"Policy document:\n\n%s",
		policyText,
	)
}
