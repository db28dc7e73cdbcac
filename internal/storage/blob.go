package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/codebuildervaibhav/abacus/internal/errors"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

// LocalBlobStore keeps uploaded files in a directory on local disk.
type LocalBlobStore struct {
	dir string
	now func() time.Time
}

// NewLocalBlobStore creates the upload directory if needed.
func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalBlobStore{dir: dir, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *LocalBlobStore) Dir() string {
	return s.dir
}

// Save writes the content of r under a unique key derived from sourceName.
// Empty content is rejected and leaves nothing behind.
func (s *LocalBlobStore) Save(ctx context.Context, sourceName string, r io.Reader) (types.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return types.BlobRef{}, err
	}

	// 1718000000000-claims.csv
	name := sanitizeFilename(sourceName)
	key := strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + name

	f, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return types.BlobRef{}, apperrors.Storage(err, "create upload file")
	}
	tmp := f.Name()

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return types.BlobRef{}, apperrors.Storage(err, "write upload file")
	}
	if n == 0 {
		_ = os.Remove(tmp)
		return types.BlobRef{}, apperrors.Intake("Uploaded file is empty")
	}

	key, err = s.place(tmp, key)
	if err != nil {
		_ = os.Remove(tmp)
		return types.BlobRef{}, apperrors.Storage(err, "store upload file")
	}
	return types.BlobRef{Key: key, Name: sourceName}, nil
}

// place links tmp under key, adding a counter when another upload in the
// same millisecond already took the name. Link never replaces an existing
// file, so each key is claimed by exactly one upload.
func (s *LocalBlobStore) place(tmp, key string) (string, error) {
	candidate := key
	for i := 1; ; i++ {
		err := os.Link(tmp, filepath.Join(s.dir, candidate))
		if err == nil {
			_ = os.Remove(tmp)
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		if i > 1000 {
			return "", fmt.Errorf("no free name for %s", key)
		}
		ext := filepath.Ext(key)
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(key, ext), i, ext)
	}
}

// Open returns the stored content for ref.
func (s *LocalBlobStore) Open(ref types.BlobRef) (io.ReadCloser, error) {
	path, err := s.Path(ref.Key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundf("upload %s not found", ref.Key)
		}
		return nil, apperrors.Storage(err, "open upload file")
	}
	return f, nil
}

// Path resolves a key to a file inside the upload directory.
func (s *LocalBlobStore) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", apperrors.Validationf("invalid upload key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// sanitizeFilename strips directories and characters that are unsafe on disk.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
	result = strings.TrimLeft(result, ".")
	if result == "" {
		result = "upload"
	}
	if len(result) > 100 {
		result = result[len(result)-100:]
	}
	return result
}
