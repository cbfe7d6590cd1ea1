package repository

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDocumentRepositoryTest(t *testing.T) (DocumentRepository, *gorm.DB) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	return NewDocumentRepository(testDB, nil), testDB
}

var seedSeq atomic.Uint64

func seedDocument(t *testing.T, repo DocumentRepository, mutate func(*model.Document)) *model.Document {
	doc := &model.Document{
		EntityType:         model.EntityDriver,
		EntityID:           1,
		DocumentType:       model.DocumentDriverLicense,
		FileName:           fmt.Sprintf("driver_license_driver_1_%d.pdf", seedSeq.Add(1)),
		FilePath:           "/blobs/test.pdf",
		FileSize:           128,
		VerificationStatus: model.VerificationPending,
		IsActive:           true,
		UploadedBy:         1,
	}
	if mutate != nil {
		mutate(doc)
	}
	require.NoError(t, repo.Create(doc))
	return doc
}

func TestDocumentRepository_CreateAndFind(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	doc := seedDocument(t, repo, func(d *model.Document) {
		d.Metadata = model.JSONMap{"issued_by": "city office"}
	})

	found, err := repo.FindByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.FileName, found.FileName)
	assert.Equal(t, "city office", found.Metadata["issued_by"])
	assert.Equal(t, model.VerificationPending, found.VerificationStatus)
}

func TestDocumentRepository_FindByID_NotFound(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	_, err := repo.FindByID(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDocumentRepository_FilterByEntityAndStatus(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	seedDocument(t, repo, nil)
	seedDocument(t, repo, func(d *model.Document) {
		d.EntityType = model.EntityVehicle
		d.DocumentType = model.DocumentVehicleInsurance
	})
	seedDocument(t, repo, func(d *model.Document) {
		d.VerificationStatus = model.VerificationApproved
	})

	entityType := model.EntityDriver
	result, err := repo.FindWithFilter(DocumentFilter{EntityType: &entityType})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)

	status := model.VerificationApproved
	result, err = repo.FindWithFilter(DocumentFilter{VerificationStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)

	// Combined filters intersect.
	result, err = repo.FindWithFilter(DocumentFilter{EntityType: &entityType, VerificationStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)
}

func TestDocumentRepository_SearchMatchesFileNameAndMetadata(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	seedDocument(t, repo, func(d *model.Document) {
		d.FileName = "national_id_user_3_abc.pdf"
		d.EntityType = model.EntityUser
		d.DocumentType = model.DocumentNationalID
	})
	seedDocument(t, repo, func(d *model.Document) {
		d.Metadata = model.JSONMap{"note": "renewal batch 7"}
	})
	seedDocument(t, repo, nil)

	result, err := repo.FindWithFilter(DocumentFilter{Search: "national_id"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)

	// The serialized metadata text is searched too.
	result, err = repo.FindWithFilter(DocumentFilter{Search: "renewal batch"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)
}

func TestDocumentRepository_InactiveExcludedByDefault(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	seedDocument(t, repo, nil)
	seedDocument(t, repo, func(d *model.Document) {
		d.IsActive = false
	})

	result, err := repo.FindWithFilter(DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)

	result, err = repo.FindWithFilter(DocumentFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
}

func TestDocumentRepository_Pagination(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	for i := 0; i < 7; i++ {
		seedDocument(t, repo, nil)
	}

	var seen int
	for page := 1; page <= 3; page++ {
		result, err := repo.FindWithFilter(DocumentFilter{Page: page, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(7), result.TotalCount)
		assert.Equal(t, 3, result.TotalPages)
		seen += len(result.Documents)

		if page < 3 {
			assert.Len(t, result.Documents, 3)
		} else {
			assert.Len(t, result.Documents, 1)
		}
	}
	assert.Equal(t, 7, seen)
}

func TestDocumentRepository_SortByFileNameAscending(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	for _, name := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		n := name
		seedDocument(t, repo, func(d *model.Document) {
			d.FileName = n
		})
	}

	result, err := repo.FindWithFilter(DocumentFilter{
		SortBy:        DocumentSortFileName,
		SortAscending: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "a.pdf", result.Documents[0].FileName)
	assert.Equal(t, "c.pdf", result.Documents[2].FileName)
}

func TestDocumentRepository_Stats(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	now := time.Now()
	seedDocument(t, repo, nil)
	seedDocument(t, repo, func(d *model.Document) {
		d.VerificationStatus = model.VerificationApproved
		d.VerifiedAt = &now
	})
	seedDocument(t, repo, func(d *model.Document) {
		d.VerificationStatus = model.VerificationRejected
		d.VerifiedAt = &now
		d.EntityType = model.EntityVehicle
		d.DocumentType = model.DocumentVehicleRegistration
	})
	// Inactive rows are excluded from every aggregate.
	seedDocument(t, repo, func(d *model.Document) {
		d.IsActive = false
	})

	stats, err := repo.Stats(StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalDocuments)
	assert.Equal(t, int64(1), stats.PendingDocuments)
	assert.Equal(t, int64(1), stats.ApprovedDocuments)
	assert.Equal(t, int64(1), stats.RejectedDocuments)

	// Status counts partition the total; no aggregate leaks another's filter.
	sum := stats.PendingDocuments + stats.ApprovedDocuments + stats.RejectedDocuments
	assert.Equal(t, stats.TotalDocuments, sum)

	assert.Equal(t, int64(2), stats.ByDocumentType["driver_license"])
	assert.Equal(t, int64(1), stats.ByDocumentType["vehicle_registration"])
	assert.Equal(t, int64(2), stats.ByEntityType["driver"])
	assert.Equal(t, int64(1), stats.ByEntityType["vehicle"])
	assert.Equal(t, int64(3), stats.RecentUploads)
	assert.Equal(t, int64(2), stats.RecentVerifications)
}

func TestDocumentRepository_StatsFilteredByEntityType(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	seedDocument(t, repo, nil)
	seedDocument(t, repo, func(d *model.Document) {
		d.EntityType = model.EntityVehicle
		d.DocumentType = model.DocumentVehicleInsurance
	})

	entityType := model.EntityVehicle
	stats, err := repo.Stats(StatsFilter{EntityType: &entityType})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(1), stats.ByEntityType["vehicle"])
	assert.Empty(t, stats.ByEntityType["driver"])
}

func TestDocumentRepository_ExistsByFileName(t *testing.T) {
	repo, _ := setupDocumentRepositoryTest(t)

	doc := seedDocument(t, repo, nil)

	exists, err := repo.ExistsByFileName(doc.FileName)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByFileName("never_stored.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocumentRepository_HardDeleteRemovesRow(t *testing.T) {
	repo, testDB := setupDocumentRepositoryTest(t)

	doc := seedDocument(t, repo, nil)
	require.NoError(t, repo.Delete(doc.ID))

	var count int64
	testDB.Model(&model.Document{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
