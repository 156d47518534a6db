package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"secure-file-share/internal/apperr"
)

// Dir stores bytes as files inside a single directory.
type Dir struct {
	root string
}

// NewDir creates root if needed and returns a store rooted there.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("content directory is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create content directory: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.root, name), nil
}

func (d *Dir) Put(ctx context.Context, name string, r io.Reader) (Object, error) {
	p, err := d.path(name)
	if err != nil {
		return Object{}, err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Object{}, apperr.Conflict(fmt.Sprintf("stored name %q already exists", name))
		}
		return Object{}, apperr.StorageFailure("failed creating file").WithCause(err)
	}

	hr := newHashingReader(r)
	_, err = io.Copy(f, readerWithContext{ctx: ctx, r: hr})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return Object{}, storeErr(err)
	}

	return Object{Name: name, Size: hr.n, SHA256: hr.sum()}, nil
}

func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("Physical file not found on server")
		}
		return nil, apperr.StorageFailure("failed opening file").WithCause(err)
	}
	return f, nil
}

func (d *Dir) Remove(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.StorageFailure("failed removing file").WithCause(err)
	}
	return nil
}

func (d *Dir) Check(_ context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.root)
	}
	return nil
}

// readerWithContext stops a copy once ctx is done.
type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (rc readerWithContext) Read(p []byte) (int, error) {
	if err := rc.ctx.Err(); err != nil {
		return 0, err
	}
	return rc.r.Read(p)
}

// storeErr keeps coded errors (and size limit errors the caller inspects)
// intact and wraps anything else as a storage failure.
func storeErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.StorageFailure("failed writing file").WithCause(err)
}
