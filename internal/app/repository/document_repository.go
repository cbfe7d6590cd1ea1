package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/pkg/logger"
	"gorm.io/gorm"
)

type DocumentSort string

const (
	DocumentSortCreatedAt  DocumentSort = "created_at"
	DocumentSortUpdatedAt  DocumentSort = "updated_at"
	DocumentSortVerifiedAt DocumentSort = "verified_at"
	DocumentSortFileName   DocumentSort = "file_name"
)

// DocumentFilter narrows a listing. Zero values mean "no constraint".
// Inactive (soft-deleted) rows are excluded unless IncludeInactive is set.
type DocumentFilter struct {
	Search             string // matches file name and serialized metadata
	EntityType         *model.EntityType
	EntityID           *uint
	DocumentType       *model.DocumentType
	VerificationStatus *model.VerificationStatus
	VerifiedBy         *uint
	UploadedBy         *uint
	UploadedAfter      *time.Time
	UploadedBefore     *time.Time
	VerifiedAfter      *time.Time
	VerifiedBefore     *time.Time
	IncludeInactive    bool

	SortBy        DocumentSort
	SortAscending bool
	Page          int
	PageSize      int
}

type DocumentListResult struct {
	Documents  []model.Document `json:"documents"`
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// StatsFilter is the shared base filter for every aggregate count.
type StatsFilter struct {
	EntityType     *model.EntityType
	UploadedAfter  *time.Time
	UploadedBefore *time.Time
}

type DocumentStats struct {
	TotalDocuments       int64            `json:"total_documents"`
	PendingDocuments     int64            `json:"pending_documents"`
	ApprovedDocuments    int64            `json:"approved_documents"`
	RejectedDocuments    int64            `json:"rejected_documents"`
	ByDocumentType       map[string]int64 `json:"by_document_type"`
	ByEntityType         map[string]int64 `json:"by_entity_type"`
	ByVerificationStatus map[string]int64 `json:"by_verification_status"`
	RecentUploads        int64            `json:"recent_uploads"`       // last 30 days
	RecentVerifications  int64            `json:"recent_verifications"` // last 30 days
}

// CacheInvalidator is the advisory hook fired after successful mutations.
// The repository is the source of truth; invalidation failures only log.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Cache keys invalidated on document mutations.
const (
	CacheKeyDocumentList  = "documents:list"
	CacheKeyDocumentStats = "documents:stats"
)

type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	Update(doc *model.Document) error
	Delete(id uint) error // removes the row entirely
	FindWithFilter(filter DocumentFilter) (*DocumentListResult, error)
	Stats(filter StatsFilter) (*DocumentStats, error)
	ExistsByFileName(fileName string) (bool, error)
}

type documentRepository struct {
	db    *gorm.DB
	cache CacheInvalidator
}

// NewDocumentRepository creates a document repository. cache may be nil.
func NewDocumentRepository(db *gorm.DB, cache CacheInvalidator) DocumentRepository {
	return &documentRepository{db: db, cache: cache}
}

func (r *documentRepository) Create(doc *model.Document) error {
	logger.Debug("Creating document record", map[string]interface{}{
		"entity_type":   doc.EntityType,
		"entity_id":     doc.EntityID,
		"document_type": doc.DocumentType,
		"file_name":     doc.FileName,
	})

	if err := r.db.Create(doc).Error; err != nil {
		logger.Error("Failed to create document record", err, map[string]interface{}{
			"file_name": doc.FileName,
		})
		return err
	}

	r.invalidate()
	return nil
}

func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) Update(doc *model.Document) error {
	if err := r.db.Save(doc).Error; err != nil {
		logger.Error("Failed to update document record", err, map[string]interface{}{
			"document_id": doc.ID,
		})
		return err
	}

	r.invalidate()
	return nil
}

func (r *documentRepository) Delete(id uint) error {
	if err := r.db.Unscoped().Delete(&model.Document{}, id).Error; err != nil {
		logger.Error("Failed to delete document record", err, map[string]interface{}{
			"document_id": id,
		})
		return err
	}

	r.invalidate()
	return nil
}

func (r *documentRepository) ExistsByFileName(fileName string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Document{}).Where("file_name = ?", fileName).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// filteredQuery builds a fresh query from the filter. Callers must not share
// the returned query between counts; every aggregate starts from its own.
func (r *documentRepository) filteredQuery(filter DocumentFilter) *gorm.DB {
	query := r.db.Model(&model.Document{})

	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.DocumentType != nil {
		query = query.Where("document_type = ?", *filter.DocumentType)
	}
	if filter.VerificationStatus != nil {
		query = query.Where("verification_status = ?", *filter.VerificationStatus)
	}
	if filter.VerifiedBy != nil {
		query = query.Where("verified_by = ?", *filter.VerifiedBy)
	}
	if filter.UploadedBy != nil {
		query = query.Where("uploaded_by = ?", *filter.UploadedBy)
	}
	if filter.UploadedAfter != nil {
		query = query.Where("created_at >= ?", *filter.UploadedAfter)
	}
	if filter.UploadedBefore != nil {
		query = query.Where("created_at <= ?", *filter.UploadedBefore)
	}
	if filter.VerifiedAfter != nil {
		query = query.Where("verified_at >= ?", *filter.VerifiedAfter)
	}
	if filter.VerifiedBefore != nil {
		query = query.Where("verified_at <= ?", *filter.VerifiedBefore)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", filter.Search)
		query = query.Where("file_name LIKE ? OR metadata LIKE ?", like, like)
	}

	return query
}

func (r *documentRepository) FindWithFilter(filter DocumentFilter) (*DocumentListResult, error) {
	logger.Debug("Finding documents with filter", map[string]interface{}{
		"search":    filter.Search,
		"sort_by":   filter.SortBy,
		"ascending": filter.SortAscending,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})

	var total int64
	if err := r.filteredQuery(filter).Count(&total).Error; err != nil {
		logger.Error("Failed to count documents", err)
		return nil, err
	}

	query := r.filteredQuery(filter)

	sortBy := filter.SortBy
	switch sortBy {
	case DocumentSortCreatedAt, DocumentSortUpdatedAt, DocumentSortVerifiedAt, DocumentSortFileName:
	default:
		sortBy = DocumentSortCreatedAt
	}
	direction := "DESC"
	if filter.SortAscending {
		direction = "ASC"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, direction))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	totalPages := 1
	if pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	var documents []model.Document
	if err := query.Find(&documents).Error; err != nil {
		logger.Error("Failed to list documents", err)
		return nil, err
	}

	return &DocumentListResult{
		Documents:  documents,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// statsQuery builds a fresh base query for one aggregate. Every count below
// calls it again; narrowing a shared query would corrupt later counts.
func (r *documentRepository) statsQuery(filter StatsFilter) *gorm.DB {
	query := r.db.Model(&model.Document{}).Where("is_active = ?", true)

	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.UploadedAfter != nil {
		query = query.Where("created_at >= ?", *filter.UploadedAfter)
	}
	if filter.UploadedBefore != nil {
		query = query.Where("created_at <= ?", *filter.UploadedBefore)
	}

	return query
}

func (r *documentRepository) Stats(filter StatsFilter) (*DocumentStats, error) {
	stats := &DocumentStats{}

	if err := r.statsQuery(filter).Count(&stats.TotalDocuments).Error; err != nil {
		return nil, err
	}

	statusCounts := map[model.VerificationStatus]*int64{
		model.VerificationPending:  &stats.PendingDocuments,
		model.VerificationApproved: &stats.ApprovedDocuments,
		model.VerificationRejected: &stats.RejectedDocuments,
	}
	for status, dest := range statusCounts {
		if err := r.statsQuery(filter).Where("verification_status = ?", status).Count(dest).Error; err != nil {
			return nil, err
		}
	}

	var err error
	if stats.ByDocumentType, err = r.groupCount(filter, "document_type"); err != nil {
		return nil, err
	}
	if stats.ByEntityType, err = r.groupCount(filter, "entity_type"); err != nil {
		return nil, err
	}
	if stats.ByVerificationStatus, err = r.groupCount(filter, "verification_status"); err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -30)
	if err := r.statsQuery(filter).Where("created_at >= ?", since).Count(&stats.RecentUploads).Error; err != nil {
		return nil, err
	}
	if err := r.statsQuery(filter).Where("verified_at >= ?", since).Count(&stats.RecentVerifications).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *documentRepository) groupCount(filter StatsFilter, column string) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Count int64
	}
	err := r.statsQuery(filter).
		Select(fmt.Sprintf("%s AS key, COUNT(*) AS count", column)).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		logger.Error("Failed to compute grouped document count", err, map[string]interface{}{
			"column": column,
		})
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

func (r *documentRepository) invalidate() {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.cache.Invalidate(ctx, CacheKeyDocumentList, CacheKeyDocumentStats); err != nil {
		logger.Warn("Failed to invalidate document cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
