package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// File stores each record as <dir>/<key>.json. Writes go through a temporary file and a
// rename so a reader never sees a partial record.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, goerr.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, goerr.Wrap(err, "failed to create store directory", goerr.V("dir", dir))
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", goerr.New("invalid record key", goerr.V("key", key))
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *File) GetRecord(ctx context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, goerr.Wrap(ErrRecordNotFound, "no record file", goerr.V("path", path))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read record file", goerr.V("path", path))
	}
	return data, nil
}

func (f *File) PutRecord(ctx context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary record file", goerr.V("dir", f.dir))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write record file", goerr.V("path", tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close record file", goerr.V("path", tmp.Name()))
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return goerr.Wrap(err, "failed to replace record file", goerr.V("path", path))
	}
	return nil
}

func (f *File) DeleteRecord(ctx context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove record file", goerr.V("path", path))
	}
	return nil
}
