package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"TradeSync/internal/domain/models"
	domrepo "TradeSync/internal/domain/repository"
)

const artifactExt = ".json"

// FileModelStore keeps one JSON artifact per model name in a directory.
type FileModelStore struct {
	dir string
}

var _ domrepo.ModelStore = (*FileModelStore)(nil)

func NewFileModelStore(dir string) (*FileModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileModelStore{dir: dir}, nil
}

func (s *FileModelStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	return filepath.Join(s.dir, name+artifactExt), nil
}

func (s *FileModelStore) Load(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", name, err)
	}
	return blob, nil
}

// Save writes through a temp file and rename so readers never observe a
// partial artifact.
func (s *FileModelStore) Save(_ context.Context, name string, blob []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("save model %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	return nil
}

func (s *FileModelStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), artifactExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), artifactExt))
	}
	sort.Strings(out)
	return out, nil
}
