package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/movira/transreg-backend/internal/app/model"
	"github.com/movira/transreg-backend/internal/app/service"
	"github.com/movira/transreg-backend/internal/errors"
	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/xuri/excelize/v2"
)

const exportPageSize = 500

type ExportController struct {
	queryService service.DocumentQueryService
}

func NewExportController(queryService service.DocumentQueryService) *ExportController {
	return &ExportController{queryService: queryService}
}

// Export writes the filtered document catalog as an xlsx workbook.
// The filter parameters are the same as the listing endpoint.
// GET /api/v1/documents/export
func (ctrl *ExportController) Export(c *gin.Context) {
	filter, ok := parseDocumentFilter(c)
	if !ok {
		return
	}
	filter.PageSize = exportPageSize

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Documents"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{
		"ID", "Entity Type", "Entity ID", "Document Type", "File Name",
		"File Size", "Verification Status", "Verified By", "Verified At",
		"Uploaded By", "Uploaded At", "Active",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for page := 1; ; page++ {
		filter.Page = page
		result, err := ctrl.queryService.List(filter)
		if err != nil {
			logger.Error("Failed to load documents for export", err, nil)
			errors.InternalError(c, "failed to export documents")
			return
		}
		for _, doc := range result.Documents {
			writeDocumentRow(f, sheet, row, doc)
			row++
		}
		if page >= result.TotalPages {
			break
		}
	}

	fileName := fmt.Sprintf("documents_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		logger.Error("Failed to write export workbook", err, nil)
	}
	c.Status(http.StatusOK)
}

func writeDocumentRow(f *excelize.File, sheet string, row int, doc model.Document) {
	verifiedBy := ""
	if doc.VerifiedBy != nil {
		verifiedBy = fmt.Sprintf("%d", *doc.VerifiedBy)
	}
	verifiedAt := ""
	if doc.VerifiedAt != nil {
		verifiedAt = doc.VerifiedAt.Format(time.RFC3339)
	}

	values := []interface{}{
		doc.ID,
		string(doc.EntityType),
		doc.EntityID,
		string(doc.DocumentType),
		doc.FileName,
		doc.FileSize,
		string(doc.VerificationStatus),
		verifiedBy,
		verifiedAt,
		doc.UploadedBy,
		doc.CreatedAt.Format(time.RFC3339),
		doc.IsActive,
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}
