package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"movie-tracker/internal/models"
)

// Backend reads and writes the whole film library as one unit.
type Backend interface {
	// Load returns every stored library. A missing or empty store yields
	// no libraries and no error; unparsable content yields ErrCorruptStore.
	Load(ctx context.Context) ([]models.UserLibrary, error)
	// Save replaces the stored content with the given libraries.
	Save(ctx context.Context, libs []models.UserLibrary) error
}

const fileFormatVersion = 1

type fileDocument struct {
	Version   int                  `json:"version"`
	Libraries []models.UserLibrary `json:"libraries"`
}

// FileBackend keeps the library in a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the JSON file.
func (b *FileBackend) Load(_ context.Context) ([]models.UserLibrary, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrCorruptStore, b.path, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", models.ErrCorruptStore, b.path, doc.Version)
	}
	return doc.Libraries, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so a crash mid-write never leaves a truncated file behind.
func (b *FileBackend) Save(_ context.Context, libs []models.UserLibrary) error {
	if libs == nil {
		libs = []models.UserLibrary{}
	}
	data, err := json.MarshalIndent(fileDocument{Version: fileFormatVersion, Libraries: libs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace %s: %w", b.path, err)
	}
	return nil
}
