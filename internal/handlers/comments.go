package handlers

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/inkwell/backend/internal/middleware"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/internal/services"
	"github.com/inkwell/backend/pkg/utils"
	"gorm.io/gorm"
)

const maxCommentLength = 5000

type CommentHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewCommentHandler(db *gorm.DB, audit *services.AuditService) *CommentHandler {
	return &CommentHandler{DB: db, Audit: audit}
}

type createCommentRequest struct {
	Content string `json:"content"`
}

// Create attaches a comment to the post named in the path. The comment is
// attributed to the owner of the presenting API key.
func (h *CommentHandler) Create(c *fiber.Ctx) error {
	key := middleware.GetCurrentAPIKey(c)

	var post models.Post
	err := h.DB.First(&post, "slug = ?", c.Params("slug")).Error
	if err == gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading post")
	}

	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return utils.Error(c, fiber.StatusBadRequest, "comment content is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return utils.Error(c, fiber.StatusBadRequest, "comment is too long (max 5000 characters)")
	}

	comment := models.Comment{
		PostID:  post.ID,
		UserID:  key.UserID,
		Content: content,
	}
	if err := h.DB.Create(&comment).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating comment")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &key.UserID,
		Action:       "comment_created",
		ResourceType: "comment",
		ResourceID:   &comment.ID,
		Details:      map[string]interface{}{"post": post.Slug},
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, commentView{
		ID:        comment.ID,
		Author:    key.User.DisplayName,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	})
}

// Delete removes one of the caller's own comments.
func (h *CommentHandler) Delete(c *fiber.Ctx) error {
	key := middleware.GetCurrentAPIKey(c)

	commentID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid comment ID")
	}

	var comment models.Comment
	err = h.DB.First(&comment, "id = ?", commentID).Error
	if err == gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusNotFound, "comment not found")
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading comment")
	}

	if comment.UserID != key.UserID {
		return utils.Error(c, fiber.StatusForbidden, "you can only delete your own comments")
	}

	if err := h.DB.Delete(&comment).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting comment")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &key.UserID,
		Action:       "comment_deleted",
		ResourceType: "comment",
		ResourceID:   &comment.ID,
		IPAddress:    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "comment deleted",
	})
}
