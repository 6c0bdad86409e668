package extract

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// Allowed upload extensions. Zip is accepted at the pipeline boundary but
// routed through the archive expander, never through Extract directly.
var (
	allowedExtensions = map[string]bool{
		".docx": true,
		".pdf":  true,
		".txt":  true,
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".zip":  true,
	}

	imageExtensions = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
	}
)

// Extension returns the lowercased extension of a filename, dot included.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Allowed reports whether the extension is in the accepted upload set.
func Allowed(ext string) bool {
	return allowedExtensions[ext]
}

// Extractor converts a single file into normalized text or image content.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new content extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract reads the file at path and produces its normalized content. The
// declared extension decides the format; zip and anything outside the
// allowed set fail with ErrUnsupportedFormat.
func (e *Extractor) Extract(path, ext string) (models.ExtractedContent, error) {
	switch {
	case ext == ".docx":
		text, err := e.extractDocx(path)
		if err != nil {
			return models.ExtractedContent{}, err
		}
		return models.ExtractedContent{Text: text}, nil

	case ext == ".pdf":
		text, err := e.extractPDF(path)
		if err != nil {
			return models.ExtractedContent{}, err
		}
		return models.ExtractedContent{Text: text}, nil

	case ext == ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return models.ExtractedContent{}, e.fail(path, err)
		}
		return models.ExtractedContent{Text: string(data)}, nil

	case imageExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return models.ExtractedContent{}, e.fail(path, err)
		}
		return models.ExtractedContent{
			ImageBase64: base64.StdEncoding.EncodeToString(data),
			IsImage:     true,
		}, nil

	default:
		return models.ExtractedContent{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// extractPDF extracts page text and re-segments tabular lines. Receipt
// tables come out of naive text extraction as tab- or multi-space-delimited
// runs; those lines are split, trimmed and re-joined with tabs so column
// boundaries survive. Lines without a delimiter pattern pass through as-is.
func (e *Extractor) extractPDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", e.fail(path, err)
	}
	defer doc.Close()

	var lines []string
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", e.fail(path, err)
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}

	formatted := make([]string, 0, len(lines))
	for _, line := range lines {
		formatted = append(formatted, resegmentLine(line))
	}
	return strings.Join(formatted, "\n"), nil
}

// resegmentLine splits a delimited line into trimmed tokens joined by tabs.
// Tab delimiters win over four-space runs; a line that yields no tokens is
// returned unchanged.
func resegmentLine(line string) string {
	var items []string
	switch {
	case strings.Contains(line, "\t"):
		items = splitNonEmpty(line, "\t")
	case strings.Contains(line, "    "):
		items = splitNonEmpty(line, "    ")
	default:
		return line
	}

	if len(items) == 0 {
		return line
	}
	return strings.Join(items, "\t")
}

func splitNonEmpty(line, sep string) []string {
	var items []string
	for _, part := range strings.Split(line, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// extractDocx pulls raw paragraphs, drops whitespace-only ones and joins
// the survivors with blank-line separators.
func (e *Extractor) extractDocx(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", e.fail(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", e.fail(path, err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", e.fail(path, err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(para.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func (e *Extractor) fail(path string, cause error) error {
	e.logger.Error("Content extraction failed",
		zap.String("path", path),
		zap.Error(cause))
	return fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filepath.Base(path), cause)
}
