// Package storage abstracts the "list entries with mtime/size, read bytes
// by path, write bytes by path" capability assumed as an external
// collaborator. Only a local-filesystem backend is implemented in full;
// the constructor still accepts a free-form parameters map so the config
// shape can grow additional storage kinds (bucket, root, credentials
// profile, ...) without a breaking change.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry describes one listed item.
type Entry struct {
	// Name is the base name of the entry.
	Name string
	// Path is the entry's path relative to the backend root, using
	// forward-slash separators regardless of host OS.
	Path string
	// IsFile is true for regular files (directories are listed too, so
	// callers can filter).
	IsFile bool
	// Size is the content length in bytes; meaningless for directories.
	Size int64
	// LastModified is the entry's modification time; the zero value
	// means unknown.
	LastModified time.Time
}

// Backend is the storage capability a storage-poll extractor or folder
// sink depends on.
type Backend interface {
	// List lists entries under root (backend-relative path, "" for the
	// backend's own root), optionally recursing into subdirectories.
	List(ctx context.Context, root string, recursive bool) ([]Entry, error)
	// Read reads the full contents of path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write writes data to path, creating parent directories as needed.
	Write(ctx context.Context, path string, data []byte) error
}

// Kind identifies a storage backend implementation.
type Kind string

// Fs is the only Kind implemented: a local filesystem rooted at
// parameters["root"].
const Fs Kind = "fs"

// Config describes a storage backend: a Kind plus a free-form parameters
// map, passed through verbatim to the backend constructor. Only Fs is
// implemented (an empty Kind is treated as Fs); other kinds fail at
// construction with an "unsupported kind" error.
type Config struct {
	Kind       Kind              `mapstructure:"kind" toml:"kind"`
	Parameters map[string]string `mapstructure:"parameters" toml:"parameters"`
}

// New constructs a Backend from cfg. The "fs" kind reads its root
// directory from parameters["root"]; a missing/empty root defaults to the
// current working directory.
func New(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case Fs, "":
		root := cfg.Parameters["root"]
		if root == "" {
			root = "."
		}
		return NewFSBackend(root), nil
	default:
		return nil, fmt.Errorf("storage: unsupported kind %q (only %q is implemented)", cfg.Kind, Fs)
	}
}

// FSBackend is a Backend rooted at a local directory.
type FSBackend struct {
	root string
}

// NewFSBackend returns a Backend rooted at root.
func NewFSBackend(root string) *FSBackend {
	return &FSBackend{root: root}
}

// Root returns the backend's root directory.
func (b *FSBackend) Root() string { return b.root }

// List implements Backend.
func (b *FSBackend) List(ctx context.Context, root string, recursive bool) ([]Entry, error) {
	base := filepath.Join(b.root, filepath.FromSlash(root))
	var entries []Entry

	walk := func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(b.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if !recursive && path != base {
				return filepath.SkipDir
			}
			if path == base {
				return nil
			}
			entries = append(entries, Entry{Name: d.Name(), Path: rel, IsFile: false})
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		entries = append(entries, Entry{
			Name:         d.Name(),
			Path:         rel,
			IsFile:       true,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	}

	if !recursive {
		dirEntries, err := os.ReadDir(base)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", root, err)
		}
		for _, de := range dirEntries {
			info, err := de.Info()
			if err != nil {
				return nil, err
			}
			rel := filepath.ToSlash(filepath.Join(root, de.Name()))
			entries = append(entries, Entry{
				Name:         de.Name(),
				Path:         rel,
				IsFile:       !de.IsDir(),
				Size:         info.Size(),
				LastModified: info.ModTime(),
			})
		}
		return entries, nil
	}

	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", root, err)
	}
	return entries, nil
}

// Read implements Backend.
func (b *FSBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	full := filepath.Join(b.root, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write implements Backend.
func (b *FSBackend) Write(ctx context.Context, path string, data []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	full := filepath.Join(b.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}
