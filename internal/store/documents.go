package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalDocumentStore keeps uploaded documents as files under a data
// directory, one file per session.
type LocalDocumentStore struct {
	dir string
}

// NewLocalDocumentStore ensures dir exists and returns the store.
func NewLocalDocumentStore(dir string) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	return &LocalDocumentStore{dir: dir}, nil
}

func (s *LocalDocumentStore) Save(_ context.Context, sessionID, fileName string, data []byte) (string, error) {
	ref := sessionID + "_" + sanitizeFileName(fileName)
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o640); err != nil {
		return "", fmt.Errorf("saving document: %w", err)
	}
	return ref, nil
}

func (s *LocalDocumentStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sanitizeFileName(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrDocumentNotFound
	}
	return data, err
}

func (s *LocalDocumentStore) Delete(_ context.Context, ref string) error {
	err := os.Remove(filepath.Join(s.dir, sanitizeFileName(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// sanitizeFileName strips path separators so a crafted file name cannot
// escape the documents directory.
func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return name
}
