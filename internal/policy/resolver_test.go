package policy

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
	"github.com/midaslabs/reimburse/internal/storage"
)

type stubPolicyStore struct {
	policy *models.Policy
	err    error
}

func (s *stubPolicyStore) GetPolicy(context.Context, string) (*models.Policy, error) {
	return s.policy, s.err
}

type stubDocuments struct {
	objects  map[string][]byte
	listErr  error
	fetchErr error
}

func (s *stubDocuments) Upload(context.Context, string, io.Reader, int64, string) error { return nil }

func (s *stubDocuments) Fetch(_ context.Context, objectName string) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.objects[objectName], nil
}

func (s *stubDocuments) List(context.Context, string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubDocuments) PublicURL(objectName string) string { return objectName }

type stubExtractor struct {
	policy   models.Policy
	lastText string
}

func (s *stubExtractor) ExtractPolicy(_ context.Context, text string) models.Policy {
	s.lastText = text
	return s.policy
}

func TestResolvePrefersStructuredPolicy(t *testing.T) {
	structured := models.Policy{
		Category:  "Travel",
		MaxAmount: 2000,
		Frequency: models.Frequency{Times: 2, WindowDays: 30},
	}
	resolver := NewResolver(
		&stubPolicyStore{policy: &structured},
		&stubDocuments{objects: map[string][]byte{"doc": []byte("ignored")}},
		&stubExtractor{},
		zap.NewNop(),
	)

	policy := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")

	assert.Equal(t, structured, policy)
}

func TestResolveFallsBackToDocumentExtraction(t *testing.T) {
	prefix := storage.PolicyPrefix("a@x.com")
	extracted := models.Policy{
		Category:  "Meals",
		MaxAmount: 80,
		Frequency: models.Frequency{Times: 5, WindowDays: 7},
	}
	extractor := &stubExtractor{policy: extracted}
	resolver := NewResolver(
		&stubPolicyStore{},
		&stubDocuments{objects: map[string][]byte{prefix + "20260101T000000_rules.txt": []byte("meal policy text")}},
		extractor,
		zap.NewNop(),
	)

	policy := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")

	assert.Equal(t, extracted, policy)
	assert.Equal(t, "meal policy text", extractor.lastText)
}

func TestResolveDefaultsWhenNothingExists(t *testing.T) {
	resolver := NewResolver(
		&stubPolicyStore{},
		&stubDocuments{objects: map[string][]byte{}},
		&stubExtractor{},
		zap.NewNop(),
	)

	policy := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")

	assert.Equal(t, models.DefaultPolicy(), policy)
}

func TestResolveDegradesOnFailures(t *testing.T) {
	tests := []struct {
		name      string
		store     *stubPolicyStore
		documents *stubDocuments
	}{
		{
			name:      "store error falls through",
			store:     &stubPolicyStore{err: errors.New("db down")},
			documents: &stubDocuments{objects: map[string][]byte{}},
		},
		{
			name:      "list error falls through",
			store:     &stubPolicyStore{},
			documents: &stubDocuments{listErr: errors.New("storage down")},
		},
		{
			name:      "fetch error falls through",
			store:     &stubPolicyStore{},
			documents: &stubDocuments{objects: map[string][]byte{"doc": nil}, fetchErr: errors.New("gone")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(tt.store, tt.documents, &stubExtractor{}, zap.NewNop())

			policy := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")

			assert.Equal(t, models.DefaultPolicy(), policy)
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver := NewResolver(
		&stubPolicyStore{},
		&stubDocuments{objects: map[string][]byte{}},
		&stubExtractor{},
		zap.NewNop(),
	)

	first := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")
	second := resolver.Resolve(context.Background(), "u@x.com", "a@x.com")

	assert.Equal(t, first, second)
}
