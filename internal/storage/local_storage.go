package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/movira/transreg-backend/pkg/logger"
)

// LocalStorage stores blobs as files under a configured root directory.
// Name uniqueness is the caller's responsibility; no locking is needed.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) Write(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("Failed to write blob", err, map[string]interface{}{
			"path": path,
		})
		return "", err
	}

	logger.Debug("Blob written", map[string]interface{}{
		"path": path,
		"size": len(data),
	})
	return path, nil
}

func (s *LocalStorage) Read(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) Delete(_ context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		logger.Error("Failed to delete blob", err, map[string]interface{}{
			"path": path,
		})
		return err
	}
	return nil
}

func (s *LocalStorage) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *LocalStorage) List(_ context.Context) ([]BlobInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return blobs, nil
}

// PathFor returns the storage path a blob name would map to. Used by the
// orphan sweeper to delete by listed name.
func (s *LocalStorage) PathFor(name string) string {
	return filepath.Join(s.root, name)
}
