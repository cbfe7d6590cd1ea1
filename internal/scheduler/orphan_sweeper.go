package scheduler

import (
	"context"
	"time"

	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/storage"
	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// orphanGracePeriod protects blobs whose database row has not been written
// yet. An upload in flight is never older than this.
const orphanGracePeriod = time.Hour

// OrphanSweeper removes stored blobs that no document row references.
// Orphans appear when a hard delete loses the blob-removal step or when a
// crash lands between blob write and row insert.
type OrphanSweeper struct {
	cron  *cron.Cron
	repo  repository.DocumentRepository
	blobs storage.BlobStore
}

func NewOrphanSweeper(repo repository.DocumentRepository, blobs storage.BlobStore) *OrphanSweeper {
	return &OrphanSweeper{
		cron:  cron.New(),
		repo:  repo,
		blobs: blobs,
	}
}

// Start schedules the sweep daily at 03:00.
func (s *OrphanSweeper) Start() error {
	_, err := s.cron.AddFunc("0 3 * * *", func() {
		if err := s.Sweep(context.Background()); err != nil {
			logger.Error("Orphan blob sweep failed", err, nil)
		}
	})
	if err != nil {
		logger.Error("Failed to schedule orphan blob sweep", err, nil)
		return err
	}

	s.cron.Start()
	logger.Info("Orphan blob sweeper started (daily at 3:00 AM)", nil)

	return nil
}

func (s *OrphanSweeper) Stop() {
	s.cron.Stop()
	logger.Info("Orphan blob sweeper stopped", nil)
}

// Sweep lists every stored blob and deletes those without a matching
// document row, skipping blobs younger than the grace period.
func (s *OrphanSweeper) Sweep(ctx context.Context) error {
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-orphanGracePeriod)
	removed := 0
	for _, blob := range blobs {
		if blob.ModTime.After(cutoff) {
			continue
		}

		exists, err := s.repo.ExistsByFileName(blob.Name)
		if err != nil {
			logger.Warn("Skipping blob during orphan sweep", map[string]interface{}{
				"file_name": blob.Name,
				"error":     err.Error(),
			})
			continue
		}
		if exists {
			continue
		}

		if err := s.blobs.Delete(ctx, s.blobs.PathFor(blob.Name)); err != nil {
			logger.Error("Failed to delete orphaned blob", err, map[string]interface{}{
				"file_name": blob.Name,
			})
			continue
		}
		removed++
	}

	logger.Info("Orphan blob sweep completed", map[string]interface{}{
		"scanned": len(blobs),
		"removed": removed,
	})

	return nil
}
