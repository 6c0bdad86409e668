package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/models"
)

// Expander unpacks uploaded zip archives and routes every supported member
// through the content extractor.
type Expander struct {
	extractor *Extractor
	logger    *zap.Logger
}

// NewExpander creates a new archive expander.
func NewExpander(extractor *Extractor, logger *zap.Logger) *Expander {
	return &Expander{
		extractor: extractor,
		logger:    logger,
	}
}

// Expand extracts the archive into an isolated temporary directory, walks
// it recursively and extracts every regular file with a supported non-zip
// extension. Nested archives are left unexpanded. A member that fails to
// extract is logged and skipped; the rest of the archive still counts. The
// temporary directory is removed no matter how traversal ends.
func (x *Expander) Expand(archivePath string) ([]models.ExtractedContent, error) {
	tmpDir, err := os.MkdirTemp("", "receipts-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			x.logger.Warn("Failed to remove archive temp dir",
				zap.String("dir", tmpDir),
				zap.Error(rmErr))
		}
	}()

	if err := unzip(archivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filepath.Base(archivePath), err)
	}

	contents := []models.ExtractedContent{}
	walkErr := filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := Extension(path)
		if !Allowed(ext) || ext == ".zip" {
			return nil
		}

		content, err := x.extractor.Extract(path, ext)
		if err != nil {
			x.logger.Error("Skipping archive member",
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			return nil
		}
		contents = append(contents, content)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk archive contents: %w", walkErr)
	}

	x.logger.Info("Archive expanded",
		zap.String("archive", filepath.Base(archivePath)),
		zap.Int("extracted", len(contents)))
	return contents, nil
}

// unzip extracts every entry of the archive under destDir, refusing paths
// that escape it.
func unzip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target := filepath.Join(destDir, entry.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction dir: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create dir: %w", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir: %w", err)
		}
		if err := writeZipEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
