package controller

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/app/service"
	"github.com/movira/transreg-backend/internal/errors"
	"github.com/movira/transreg-backend/internal/middleware"
	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/movira/transreg-backend/pkg/queue"
	stderrors "errors"
)

type DocumentController struct {
	documentService service.DocumentService
	queryService    service.DocumentQueryService
}

func NewDocumentController(documentService service.DocumentService, queryService service.DocumentQueryService) *DocumentController {
	return &DocumentController{
		documentService: documentService,
		queryService:    queryService,
	}
}

// uploadConfig is one entry of the batch upload "configs" array, paired
// positionally with the uploaded files.
type uploadConfig struct {
	DocumentType string        `json:"document_type"`
	EntityType   string        `json:"entity_type"`
	EntityID     uint          `json:"entity_id"`
	Priority     string        `json:"priority"`
	Metadata     model.JSONMap `json:"metadata"`
}

type verifyRequest struct {
	VerificationStatus string        `json:"verification_status" binding:"required"`
	Comments           string        `json:"comments"`
	RejectionReason    string        `json:"rejection_reason"`
	Metadata           model.JSONMap `json:"metadata"`
}

type batchVerifyRequest struct {
	Verifications []struct {
		DocumentID         uint          `json:"document_id" binding:"required"`
		VerificationStatus string        `json:"verification_status" binding:"required"`
		Comments           string        `json:"comments"`
		RejectionReason    string        `json:"rejection_reason"`
		Metadata           model.JSONMap `json:"metadata"`
	} `json:"verifications" binding:"required"`
}

type batchProcessRequest struct {
	DocumentIDs []uint                 `json:"document_ids" binding:"required"`
	Priority    string                 `json:"priority"`
	Options     map[string]interface{} `json:"options"`
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

type batchDeleteRequest struct {
	DocumentIDs []uint `json:"document_ids" binding:"required"`
	Permanent   bool   `json:"permanent"`
	Reason      string `json:"reason"`
}

type processingStatusRequest struct {
	Status   string                 `json:"status"`
	Progress *int                   `json:"progress"`
	Result   interface{}            `json:"result"`
	Extra    map[string]interface{} `json:"extra"`
}

type metadataPatchRequest struct {
	Metadata model.JSONMap `json:"metadata" binding:"required"`
}

// Upload ingests one compliance document.
// POST /api/v1/documents
func (ctrl *DocumentController) Upload(c *gin.Context) {
	uploaderID, ok := middleware.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		errors.BadRequest(c, errors.ValidationRequired, "file is required")
		return
	}
	data, err := readMultipartFile(fileHeader)
	if err != nil {
		logger.Error("Failed to read uploaded file", err, map[string]interface{}{
			"file_name": fileHeader.Filename,
		})
		errors.BadRequest(c, errors.ValidationInvalidInput, "failed to read uploaded file")
		return
	}

	entityID, err := strconv.ParseUint(c.PostForm("entity_id"), 10, 32)
	if err != nil {
		errors.BadRequest(c, errors.ValidationInvalidID, "entity_id must be a positive integer")
		return
	}
	priority, ok := queue.ParsePriority(c.PostForm("priority"))
	if !ok {
		errors.BadRequest(c, errors.DocumentInvalidPriority, "priority must be one of low, medium, high, urgent")
		return
	}

	input := service.UploadInput{
		EntityType:   model.EntityType(c.PostForm("entity_type")),
		EntityID:     uint(entityID),
		DocumentType: model.DocumentType(c.PostForm("document_type")),
		FileName:     fileHeader.Filename,
		Data:         data,
		UploadedBy:   uploaderID,
		Priority:     priority,
	}
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Metadata); err != nil {
			errors.BadRequest(c, errors.ValidationInvalidFormat, "metadata must be a JSON object")
			return
		}
	}
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.Options); err != nil {
			errors.BadRequest(c, errors.ValidationInvalidFormat, "options must be a JSON object")
			return
		}
	}

	result, err := ctrl.documentService.Upload(c.Request.Context(), input)
	if err != nil {
		ctrl.respondServiceError(c, err, "upload")
		return
	}

	errors.RespondSuccess(c, http.StatusCreated, "document uploaded", gin.H{
		"document":  result.Document,
		"queue_id":  result.QueueID,
		"file_name": result.Document.FileName,
		"file_size": result.Document.FileSize,
	})
}

// UploadBatch ingests several documents in one call; files pair positionally
// with the "configs" JSON array. Per-file failures are itemized, not fatal.
// POST /api/v1/documents/batch
func (ctrl *DocumentController) UploadBatch(c *gin.Context) {
	uploaderID, ok := middleware.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "multipart form required")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		errors.BadRequest(c, errors.ValidationRequired, "at least one file is required")
		return
	}

	var configs []uploadConfig
	if raw := c.PostForm("configs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &configs); err != nil {
			errors.BadRequest(c, errors.ValidationInvalidFormat, "configs must be a JSON array")
			return
		}
	}
	if len(configs) != len(files) {
		errors.BadRequest(c, errors.ValidationInvalidInput, "configs must have one entry per file")
		return
	}

	inputs := make([]service.UploadInput, 0, len(files))
	for i, fileHeader := range files {
		data, err := readMultipartFile(fileHeader)
		if err != nil {
			errors.BadRequest(c, errors.ValidationInvalidInput, "failed to read uploaded file "+fileHeader.Filename)
			return
		}
		priority, ok := queue.ParsePriority(configs[i].Priority)
		if !ok {
			priority = queue.PriorityMedium
		}
		inputs = append(inputs, service.UploadInput{
			EntityType:   model.EntityType(configs[i].EntityType),
			EntityID:     configs[i].EntityID,
			DocumentType: model.DocumentType(configs[i].DocumentType),
			FileName:     fileHeader.Filename,
			Data:         data,
			UploadedBy:   uploaderID,
			Priority:     priority,
			Metadata:     configs[i].Metadata,
		})
	}

	result := ctrl.documentService.UploadBatch(c.Request.Context(), inputs)
	ctrl.respondBatch(c, "batch upload completed", result.Partial(), result)
}

// Get returns one document record.
// GET /api/v1/documents/:id
func (ctrl *DocumentController) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	doc, err := ctrl.documentService.Get(id)
	if err != nil {
		ctrl.respondServiceError(c, err, "document")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "", doc)
}

// Download streams the stored file bytes.
// GET /api/v1/documents/:id/download
func (ctrl *DocumentController) Download(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	doc, data, err := ctrl.documentService.Download(c.Request.Context(), id)
	if err != nil {
		ctrl.respondServiceError(c, err, "document")
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(doc.FileName))
	c.Data(http.StatusOK, contentTypeByExtension(doc.FileName), data)
}

// List returns a filtered, sorted, paginated document catalog.
// GET /api/v1/documents
func (ctrl *DocumentController) List(c *gin.Context) {
	filter, ok := parseDocumentFilter(c)
	if !ok {
		return
	}

	result, err := ctrl.queryService.List(filter)
	if err != nil {
		ctrl.respondServiceError(c, err, "document")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "", result)
}

// Statistics returns aggregate counts over the filtered catalog.
// GET /api/v1/documents/statistics
func (ctrl *DocumentController) Statistics(c *gin.Context) {
	filter, ok := parseStatsFilter(c)
	if !ok {
		return
	}

	stats, err := ctrl.queryService.Statistics(c.Request.Context(), filter)
	if err != nil {
		ctrl.respondServiceError(c, err, "statistics")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "", stats)
}

// Verify decides a pending document.
// PUT /api/v1/documents/:id/verify
func (ctrl *DocumentController) Verify(c *gin.Context) {
	verifierID, ok := middleware.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "")
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid verification request: "+err.Error())
		return
	}

	result, err := ctrl.documentService.Verify(c.Request.Context(), service.VerifyInput{
		DocumentID:      id,
		Status:          model.VerificationStatus(req.VerificationStatus),
		VerifiedBy:      verifierID,
		Comments:        req.Comments,
		RejectionReason: req.RejectionReason,
		Metadata:        req.Metadata,
	})
	if err != nil {
		ctrl.respondServiceError(c, err, "verify")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "document "+req.VerificationStatus, result)
}

// VerifyBatch decides several documents; per-item failures are itemized.
// POST /api/v1/documents/verify/batch
func (ctrl *DocumentController) VerifyBatch(c *gin.Context) {
	verifierID, ok := middleware.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "")
		return
	}

	var req batchVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid batch verification request: "+err.Error())
		return
	}

	inputs := make([]service.VerifyInput, 0, len(req.Verifications))
	for _, v := range req.Verifications {
		inputs = append(inputs, service.VerifyInput{
			DocumentID:      v.DocumentID,
			Status:          model.VerificationStatus(v.VerificationStatus),
			VerifiedBy:      verifierID,
			Comments:        v.Comments,
			RejectionReason: v.RejectionReason,
			Metadata:        v.Metadata,
		})
	}

	result := ctrl.documentService.VerifyBatch(c.Request.Context(), inputs)
	ctrl.respondBatch(c, "batch verification completed", result.Partial(), result)
}

// ProcessBatch re-enqueues processing jobs for existing documents.
// POST /api/v1/documents/process/batch
func (ctrl *DocumentController) ProcessBatch(c *gin.Context) {
	var req batchProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid batch process request: "+err.Error())
		return
	}
	priority, ok := queue.ParsePriority(req.Priority)
	if !ok {
		errors.BadRequest(c, errors.DocumentInvalidPriority, "priority must be one of low, medium, high, urgent")
		return
	}

	inputs := make([]service.ProcessInput, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		inputs = append(inputs, service.ProcessInput{
			DocumentID: id,
			Priority:   priority,
			Options:    req.Options,
		})
	}

	result := ctrl.documentService.ProcessBatch(c.Request.Context(), inputs)
	ctrl.respondBatch(c, "batch processing enqueued", result.Partial(), result)
}

// UpdateProcessingStatus is the worker callback merging processing progress.
// PUT /api/v1/documents/:id/processing
func (ctrl *DocumentController) UpdateProcessingStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req processingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid processing status request: "+err.Error())
		return
	}

	doc, err := ctrl.documentService.UpdateProcessingStatus(id, service.ProcessingUpdate{
		Status:   req.Status,
		Progress: req.Progress,
		Result:   req.Result,
		Extra:    req.Extra,
	})
	if err != nil {
		ctrl.respondServiceError(c, err, "document")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "processing status updated", doc)
}

// PatchMetadata merges caller-supplied metadata into the record.
// PATCH /api/v1/documents/:id/metadata
func (ctrl *DocumentController) PatchMetadata(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req metadataPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid metadata patch: "+err.Error())
		return
	}

	doc, err := ctrl.documentService.PatchMetadata(id, req.Metadata)
	if err != nil {
		ctrl.respondServiceError(c, err, "document")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "metadata updated", doc)
}

// Delete soft-deletes by default; ?permanent=true removes the row and blob.
// DELETE /api/v1/documents/:id
func (ctrl *DocumentController) Delete(c *gin.Context) {
	deleterID, _ := middleware.GetUserID(c)
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	permanent := c.Query("permanent") == "true"
	var req deleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.BadRequest(c, errors.ValidationInvalidInput, "invalid delete request: "+err.Error())
			return
		}
	}

	result, err := ctrl.documentService.Delete(c.Request.Context(), service.DeleteInput{
		DocumentID: id,
		Permanent:  permanent,
		Reason:     req.Reason,
		DeletedBy:  deleterID,
	})
	if err != nil {
		ctrl.respondServiceError(c, err, "delete")
		return
	}

	errors.RespondSuccess(c, http.StatusOK, "document deleted", result)
}

// DeleteBatch deletes several documents; per-item failures are itemized.
// POST /api/v1/documents/delete/batch
func (ctrl *DocumentController) DeleteBatch(c *gin.Context) {
	deleterID, _ := middleware.GetUserID(c)

	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "invalid batch delete request: "+err.Error())
		return
	}

	inputs := make([]service.DeleteInput, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		inputs = append(inputs, service.DeleteInput{
			DocumentID: id,
			Permanent:  req.Permanent,
			Reason:     req.Reason,
			DeletedBy:  deleterID,
		})
	}

	result := ctrl.documentService.DeleteBatch(c.Request.Context(), inputs)
	ctrl.respondBatch(c, "batch delete completed", result.Partial(), result)
}

func (ctrl *DocumentController) respondBatch(c *gin.Context, message string, partial bool, result interface{}) {
	if partial {
		errors.RespondPartial(c, message, result)
		return
	}
	errors.RespondSuccess(c, http.StatusOK, message, result)
}

// respondServiceError maps service sentinel errors to the error taxonomy:
// NotFound for missing records/entities, BadRequest for closed-set and
// queue-publish failures, Conflict for re-deciding a decided document.
func (ctrl *DocumentController) respondServiceError(c *gin.Context, err error, context string) {
	switch {
	case stderrors.Is(err, service.ErrDocumentNotFound):
		errors.NotFound(c, errors.DocumentNotFound, "document not found")
	case stderrors.Is(err, service.ErrEntityNotFound):
		errors.NotFound(c, errors.DocumentEntityNotFound, "referenced entity not found")
	case stderrors.Is(err, service.ErrUnsupportedEntityType):
		errors.BadRequest(c, errors.DocumentInvalidEntityType, "entity_type must be one of driver, vehicle, user")
	case stderrors.Is(err, service.ErrUnsupportedDocumentType):
		errors.BadRequest(c, errors.DocumentInvalidType, "unsupported document type")
	case stderrors.Is(err, service.ErrInvalidVerificationStatus):
		errors.BadRequest(c, errors.DocumentInvalidStatus, "verification_status must be approved or rejected")
	case stderrors.Is(err, service.ErrDocumentAlreadyDecided):
		errors.Conflict(c, errors.DocumentAlreadyDecided, "document verification already decided")
	case stderrors.Is(err, service.ErrFileTooLarge):
		errors.BadRequest(c, errors.DocumentFileTooLarge, "file exceeds the maximum allowed size")
	case stderrors.Is(err, service.ErrFileTypeNotAllowed):
		errors.BadRequest(c, errors.DocumentFileTypeNotAllowed, "file extension is not allowed")
	case stderrors.Is(err, service.ErrQueuePublish):
		errors.BadRequest(c, errors.QueuePublishFailed, "failed to enqueue processing job")
	default:
		info := errors.ParseError(err, context)
		status := http.StatusInternalServerError
		if info.Code == errors.ResourceNotFound {
			status = http.StatusNotFound
		}
		errors.RespondWithError(c, status, info.Code, info.Message)
	}
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		errors.BadRequest(c, errors.ValidationInvalidID, "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func readMultipartFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// parseDocumentFilter reads the listing filter from query parameters. On a
// malformed parameter it writes the error response and returns false.
func parseDocumentFilter(c *gin.Context) (repository.DocumentFilter, bool) {
	filter := repository.DocumentFilter{
		Search:          c.Query("search"),
		IncludeInactive: c.Query("include_inactive") == "true",
		SortBy:          repository.DocumentSort(c.Query("sort_by")),
		SortAscending:   strings.EqualFold(c.Query("order"), "asc"),
	}

	if v := c.Query("entity_type"); v != "" {
		entityType := model.EntityType(v)
		if !entityType.Valid() {
			errors.BadRequest(c, errors.DocumentInvalidEntityType, "entity_type must be one of driver, vehicle, user")
			return filter, false
		}
		filter.EntityType = &entityType
	}
	if v := c.Query("document_type"); v != "" {
		documentType := model.DocumentType(v)
		filter.DocumentType = &documentType
	}
	if v := c.Query("verification_status"); v != "" {
		status := model.VerificationStatus(v)
		filter.VerificationStatus = &status
	}

	for param, dest := range map[string]**uint{
		"entity_id":   &filter.EntityID,
		"verified_by": &filter.VerifiedBy,
		"uploaded_by": &filter.UploadedBy,
	} {
		if v := c.Query(param); v != "" {
			parsed, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				errors.BadRequest(c, errors.ValidationInvalidID, param+" must be a positive integer")
				return filter, false
			}
			id := uint(parsed)
			*dest = &id
		}
	}

	for param, dest := range map[string]**time.Time{
		"uploaded_from": &filter.UploadedAfter,
		"uploaded_to":   &filter.UploadedBefore,
		"verified_from": &filter.VerifiedAfter,
		"verified_to":   &filter.VerifiedBefore,
	} {
		if v := c.Query(param); v != "" {
			parsed, ok := parseTimeParam(v)
			if !ok {
				errors.BadRequest(c, errors.ValidationInvalidFormat, param+" must be an RFC3339 timestamp or YYYY-MM-DD date")
				return filter, false
			}
			*dest = &parsed
		}
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	return filter, true
}

func parseStatsFilter(c *gin.Context) (repository.StatsFilter, bool) {
	filter := repository.StatsFilter{}

	if v := c.Query("entity_type"); v != "" {
		entityType := model.EntityType(v)
		if !entityType.Valid() {
			errors.BadRequest(c, errors.DocumentInvalidEntityType, "entity_type must be one of driver, vehicle, user")
			return filter, false
		}
		filter.EntityType = &entityType
	}
	if v := c.Query("from"); v != "" {
		parsed, ok := parseTimeParam(v)
		if !ok {
			errors.BadRequest(c, errors.ValidationInvalidFormat, "from must be an RFC3339 timestamp or YYYY-MM-DD date")
			return filter, false
		}
		filter.UploadedAfter = &parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, ok := parseTimeParam(v)
		if !ok {
			errors.BadRequest(c, errors.ValidationInvalidFormat, "to must be an RFC3339 timestamp or YYYY-MM-DD date")
			return filter, false
		}
		filter.UploadedBefore = &parsed
	}

	return filter, true
}

func parseTimeParam(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func contentTypeByExtension(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
