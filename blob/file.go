package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore serves file://{bucket}/{object} URIs from {root}/{bucket}/{object}.
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (f *FileStore) Supports(uri string) bool { return hasScheme(uri, []string{"file"}) }

func (f *FileStore) Read(_ context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "file" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, uri)
	}

	rel := filepath.Join(loc.Bucket, filepath.FromSlash(loc.Object))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %s escapes the store root", ErrUnsupported, uri)
	}

	data, err := os.ReadFile(filepath.Join(f.root, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	return data, nil
}
