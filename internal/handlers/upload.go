package handlers

import (
	"io"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/logger"
	"github.com/inkwell/backend/pkg/utils"
)

const (
	maxMarkdownUpload = 2 << 20  // 2MB
	maxArchiveUpload  = 50 << 20 // 50MB
)

type UploadHandler struct {
	Ingest *services.IngestService
	Audit  *services.AuditService
}

func NewUploadHandler(ingest *services.IngestService, audit *services.AuditService) *UploadHandler {
	return &UploadHandler{Ingest: ingest, Audit: audit}
}

// Upload ingests a Markdown document or a ZIP archive containing one and
// publishes it as a post.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "a 'file' field is required")
	}

	filename := path.Base(fileHeader.Filename)
	ext := strings.ToLower(path.Ext(filename))

	var limit int64
	switch ext {
	case ".md":
		limit = maxMarkdownUpload
	case ".zip":
		limit = maxArchiveUpload
	default:
		return utils.Error(c, fiber.StatusBadRequest, "only .md and .zip files are accepted")
	}

	if fileHeader.Size > limit {
		return utils.Error(c, fiber.StatusBadRequest, "file is too large")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading upload")
	}
	if int64(len(data)) > limit {
		return utils.Error(c, fiber.StatusBadRequest, "file is too large")
	}

	var slug string
	switch ext {
	case ".md":
		slug, err = h.Ingest.IngestMarkdown(c.Context(), data, filename)
	case ".zip":
		slug, err = h.Ingest.IngestArchive(c.Context(), data, filename)
	}
	if err != nil {
		if services.IsValidationError(err) {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		logger.Error("upload_ingest_failed", err, map[string]interface{}{
			"filename": filename,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed publishing post")
	}

	entry := services.AuditEntry{
		Action:       "post_uploaded",
		ResourceType: "post",
		Details:      map[string]interface{}{"slug": slug, "filename": filename},
		IPAddress:    c.IP(),
	}
	if key := middleware.GetCurrentAPIKey(c); key != nil {
		entry.UserID = &key.UserID
	}
	h.Audit.LogAsync(entry)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"slug": slug,
		"url":  postURL(slug),
	})
}
