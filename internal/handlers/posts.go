package handlers

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/utils"
	"gorm.io/gorm"
)

type PostHandler struct {
	DB     *gorm.DB
	Ingest *services.IngestService
	Audit  *services.AuditService
}

func NewPostHandler(db *gorm.DB, ingest *services.IngestService, audit *services.AuditService) *PostHandler {
	return &PostHandler{DB: db, Ingest: ingest, Audit: audit}
}

type postSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

type commentView struct {
	ID        uuid.UUID `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type postDetail struct {
	Slug      string        `json:"slug"`
	Title     string        `json:"title"`
	Summary   string        `json:"summary"`
	Tags      []string      `json:"tags"`
	Body      string        `json:"body"`
	CreatedAt time.Time     `json:"created_at"`
	Comments  []commentView `json:"comments"`
}

// List returns published posts newest first, optionally narrowed to a tag.
func (h *PostHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Post{})
	if tag := strings.TrimSpace(c.Query("tag")); tag != "" {
		// Tags are stored as a JSON array of normalized strings, so an
		// element match is a substring match on the quoted value. The tag
		// is user input, so LIKE metacharacters are escaped first.
		escaped := escapeLikePattern(strings.ToLower(tag))
		query = query.Where(`CAST(tags AS TEXT) LIKE ? ESCAPE '\'`, `%"`+escaped+`"%`)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing posts")
	}

	var posts []models.Post
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&posts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing posts")
	}

	items := make([]postSummary, 0, len(posts))
	for i := range posts {
		items = append(items, postSummary{
			Slug:      posts[i].Slug,
			Title:     posts[i].Title,
			Summary:   posts[i].Summary,
			Tags:      posts[i].Tags,
			CreatedAt: posts[i].CreatedAt,
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"posts":      items,
		"pagination": utils.NewPagination(p.Page, p.PerPage, total),
	})
}

// Detail returns a single post with its comments, oldest first.
func (h *PostHandler) Detail(c *fiber.Ctx) error {
	slug := c.Params("slug")

	var post models.Post
	err := h.DB.
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Comments.User").
		First(&post, "slug = ?", slug).Error
	if err == gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	comments := make([]commentView, 0, len(post.Comments))
	for i := range post.Comments {
		comments = append(comments, commentView{
			ID:        post.Comments[i].ID,
			Author:    post.Comments[i].User.DisplayName,
			Content:   post.Comments[i].Content,
			CreatedAt: post.Comments[i].CreatedAt,
		})
	}

	return utils.Success(c, fiber.StatusOK, postDetail{
		Slug:      post.Slug,
		Title:     post.Title,
		Summary:   post.Summary,
		Tags:      post.Tags,
		Body:      post.Body,
		CreatedAt: post.CreatedAt,
		Comments:  comments,
	})
}

type createPostRequest struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Body    string   `json:"body"`
}

// Create makes a post from JSON fields rather than an uploaded document.
func (h *PostHandler) Create(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Body) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "post body is required")
	}

	slug, err := h.Ingest.CreateFromFields(c.Context(), req.Title, req.Summary, req.Tags, req.Body)
	if err != nil {
		if services.IsValidationError(err) {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating post")
	}

	h.auditPostCreated(c, slug)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"slug": slug,
		"url":  postURL(slug),
	})
}

// Tags returns every tag in use with its post count, most used first.
func (h *PostHandler) Tags(c *fiber.Ctx) error {
	var posts []models.Post
	if err := h.DB.Select("tags").Find(&posts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing tags")
	}

	counts := map[string]int{}
	for i := range posts {
		for _, tag := range posts[i].Tags {
			counts[tag]++
		}
	}

	type tagCount struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	tags := make([]tagCount, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, tagCount{Name: name, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"tags": tags})
}

func (h *PostHandler) auditPostCreated(c *fiber.Ctx, slug string) {
	entry := services.AuditEntry{
		Action:       "post_created",
		ResourceType: "post",
		Details:      map[string]interface{}{"slug": slug},
		IPAddress:    c.IP(),
	}
	if key := middleware.GetCurrentAPIKey(c); key != nil {
		entry.UserID = &key.UserID
	}
	h.Audit.LogAsync(entry)
}

func postURL(slug string) string {
	return "/post/" + slug + "/"
}
