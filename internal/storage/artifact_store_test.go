package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

type fakeObjectStore struct {
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (f *fakeObjectStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	f.types[objectName] = contentType
	return nil
}

func (f *fakeObjectStore) Fetch(_ context.Context, objectName string) ([]byte, error) {
	return f.objects[objectName], nil
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range f.objects {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeObjectStore) PublicURL(objectName string) string {
	return "https://store.test/bucket/" + objectName
}

func newTestArtifactStore(store ObjectStore) *ArtifactStore {
	a := NewArtifactStore(store, zap.NewNop())
	a.now = func() time.Time {
		return time.Date(2026, 3, 1, 14, 30, 45, 0, time.UTC)
	}
	return a
}

func TestObjectNameScheme(t *testing.T) {
	store := newTestArtifactStore(newFakeObjectStore())

	name := store.ObjectName("lunch receipt.pdf", models.DecisionApproved, "admin@corp.io", "user@corp.io")

	assert.Equal(t, "Reimbursement/admincorpio/APPROVED/lunch receipt_20260301_143045_usercorpio.pdf", name)
}

func TestObjectNameRejectedDecision(t *testing.T) {
	store := newTestArtifactStore(newFakeObjectStore())

	name := store.ObjectName("scan.png", models.DecisionRejected, "a@b.c", "u@b.c")

	assert.Contains(t, name, "/REJECTED/")
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "janedoecorpio", NormalizeIdentifier("jane.doe@corp.io"))
	assert.Equal(t, "plain", NormalizeIdentifier("plain"))
}

func TestPolicyPrefix(t *testing.T) {
	assert.Equal(t, "Reimbursement/admincorpio/policies/", PolicyPrefix("admin@corp.io"))
}

func TestPersistUploadsAndReturnsURL(t *testing.T) {
	fake := newFakeObjectStore()
	store := newTestArtifactStore(fake)

	path := filepath.Join(t.TempDir(), "receipt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Coffee $4.50"), 0o600))

	url, err := store.Persist(context.Background(), path, "receipt.txt", models.DecisionApproved, "admin@corp.io", "user@corp.io")

	require.NoError(t, err)
	assert.Contains(t, url, "https://store.test/bucket/Reimbursement/admincorpio/APPROVED/")

	objectName := "Reimbursement/admincorpio/APPROVED/receipt_20260301_143045_usercorpio.txt"
	assert.Equal(t, []byte("Coffee $4.50"), fake.objects[objectName])
	assert.Contains(t, fake.types[objectName], "text/plain")
}

func TestPersistMissingFile(t *testing.T) {
	store := newTestArtifactStore(newFakeObjectStore())

	_, err := store.Persist(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), "gone.txt", models.DecisionApproved, "a", "u")

	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestPersistStoreUnavailablePassesThrough(t *testing.T) {
	fake := newFakeObjectStore()
	fake.uploadErr = ErrStoreUnavailable
	store := newTestArtifactStore(fake)

	path := filepath.Join(t.TempDir(), "receipt.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := store.Persist(context.Background(), path, "receipt.txt", models.DecisionApproved, "a", "u")

	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
