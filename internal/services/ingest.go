package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/inkwell/backend/internal/content"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/pkg/logger"
	"gorm.io/gorm"
)

// ValidationError marks ingestion failures caused by the uploaded payload
// itself, as opposed to storage faults. Handlers map it to a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IngestService turns uploaded Markdown documents and ZIP archives into
// persisted posts.
type IngestService struct {
	DB     *gorm.DB
	Assets content.AssetSink
}

func NewIngestService(db *gorm.DB, assets content.AssetSink) *IngestService {
	return &IngestService{DB: db, Assets: assets}
}

// IngestMarkdown processes a bare .md upload and returns the slug of the
// created post.
func (s *IngestService) IngestMarkdown(ctx context.Context, data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", validationErrorf("file encoding is not UTF-8")
	}

	fallbackTitle := strings.TrimSuffix(filename, path.Ext(filename))
	meta, body, err := content.SplitFrontmatter(string(data))
	if err != nil {
		return "", &ValidationError{Message: err.Error()}
	}
	meta.FillDefaults(fallbackTitle)

	return s.createPost(ctx, meta, body)
}

// IngestArchive processes a .zip upload: validates the archive against the
// safety policy, extracts permitted images, rewrites the document's image
// references, and creates the post. Nothing is persisted on any failure.
func (s *IngestService) IngestArchive(ctx context.Context, data []byte, filename string) (string, error) {
	zr, err := content.OpenArchive(data)
	if err != nil {
		return "", validationErrorf("invalid ZIP archive")
	}

	if err := content.ValidateArchive(zr); err != nil {
		return "", &ValidationError{Message: err.Error()}
	}

	doc, err := content.Document(zr)
	if err != nil {
		return "", &ValidationError{Message: err.Error()}
	}

	docBytes, err := content.ReadEntry(doc)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", doc.Name, err)
	}
	if !utf8.Valid(docBytes) {
		return "", validationErrorf(".md document encoding is not UTF-8")
	}

	mapping, err := content.ExtractAssets(ctx, zr, s.Assets)
	if err != nil {
		return "", err
	}

	fallbackTitle := strings.TrimSuffix(path.Base(doc.Name), path.Ext(doc.Name))
	meta, body, err := content.SplitFrontmatter(string(docBytes))
	if err != nil {
		return "", &ValidationError{Message: err.Error()}
	}
	meta.FillDefaults(fallbackTitle)

	if len(mapping) > 0 {
		body = content.RewriteImagePaths(body, mapping)
	}

	return s.createPost(ctx, meta, body)
}

// CreateFromFields creates a post from interactive input, reusing the same
// slug derivation and tag policy as the upload pipeline.
func (s *IngestService) CreateFromFields(ctx context.Context, title, summary string, tags []string, body string) (string, error) {
	meta := content.Metadata{
		"title":   title,
		"summary": summary,
	}
	meta.FillDefaults(title)
	post, err := s.persistPost(ctx, meta, content.NormalizeTags(tags), body)
	if err != nil {
		return "", err
	}
	return post.Slug, nil
}

func (s *IngestService) createPost(ctx context.Context, meta content.Metadata, body string) (string, error) {
	tags := content.NormalizeTags(meta.Tags())
	post, err := s.persistPost(ctx, meta, tags, body)
	if err != nil {
		return "", err
	}
	return post.Slug, nil
}

func (s *IngestService) persistPost(ctx context.Context, meta content.Metadata, tags []string, body string) (*models.Post, error) {
	title := meta.String("title")
	slug, err := s.uniqueSlug(ctx, content.Slugify(title))
	if err != nil {
		return nil, err
	}

	post := models.Post{
		Title:   title,
		Slug:    slug,
		Summary: meta.String("summary"),
		Tags:    tags,
		Body:    body,
	}
	post.CreatedAt = meta.Date()

	if err := s.DB.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, err
	}

	logger.Info("post_created", map[string]interface{}{
		"post_id": post.ID.String(),
		"slug":    post.Slug,
		"title":   post.Title,
	})

	return &post, nil
}

// uniqueSlug appends -1, -2, ... to the candidate until no post claims it.
// The check-then-create window is closed by the unique index on slug; a
// concurrent loser surfaces as a storage fault.
func (s *IngestService) uniqueSlug(ctx context.Context, candidate string) (string, error) {
	taken, err := s.slugTaken(ctx, candidate)
	if err != nil {
		return "", err
	}
	if !taken {
		return candidate, nil
	}

	for counter := 1; ; counter++ {
		next := fmt.Sprintf("%s-%d", candidate, counter)
		taken, err := s.slugTaken(ctx, next)
		if err != nil {
			return "", err
		}
		if !taken {
			return next, nil
		}
	}
}

func (s *IngestService) slugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}
