package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/db"
	"github.com/movira/transreg-backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrphanSweeper_Sweep(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repository.NewDocumentRepository(testDB, nil)
	ctx := context.Background()

	// Referenced blob: has a document row.
	refPath, err := blobs.Write(ctx, "referenced.pdf", []byte("keep"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(&model.Document{
		EntityType:         model.EntityDriver,
		EntityID:           1,
		DocumentType:       model.DocumentDriverLicense,
		FileName:           "referenced.pdf",
		FilePath:           refPath,
		VerificationStatus: model.VerificationPending,
		IsActive:           true,
		UploadedBy:         1,
	}))

	// Orphaned blob: no row. Backdate it past the grace period.
	orphanPath, err := blobs.Write(ctx, "orphan.pdf", []byte("remove"))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, touchFile(orphanPath, old))

	// Fresh unreferenced blob: could be an upload in flight, left alone.
	freshPath, err := blobs.Write(ctx, "fresh.pdf", []byte("in flight"))
	require.NoError(t, err)

	sweeper := NewOrphanSweeper(repo, blobs)
	require.NoError(t, sweeper.Sweep(ctx))

	exists, _ := blobs.Exists(ctx, refPath)
	assert.True(t, exists, "referenced blob must survive")
	exists, _ = blobs.Exists(ctx, orphanPath)
	assert.False(t, exists, "orphaned blob must be removed")
	exists, _ = blobs.Exists(ctx, freshPath)
	assert.True(t, exists, "fresh blob must survive the grace period")
}

func touchFile(path string, at time.Time) error {
	return os.Chtimes(path, at, at)
}
