package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/inkwell/backend/internal/models"
)

func TestCreateComment(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)
	createTestPost(t, env, "target", "Target", nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": "nice post",
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	if body["content"] != "nice post" {
		t.Fatalf("unexpected comment payload: %+v", body)
	}
	if body["author"] != "Test User" {
		t.Fatalf("expected comment attributed to the key owner, got %+v", body)
	}
}

func TestCreateCommentRequiresWriteScope(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "reader@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeRead)
	createTestPost(t, env, "target", "Target", nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": "nice post",
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusForbidden)
	assertErrorMessage(t, decodeJSONMap(t, resp), "this operation requires 'write' scope or higher")
}

func TestCreateCommentOnMissingPost(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/posts/nope/comments", map[string]any{
		"content": "hello?",
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestCreateCommentRejectsEmptyAndOversized(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)
	createTestPost(t, env, "target", "Target", nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": "   ",
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": strings.Repeat("x", 5001),
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusBadRequest)

	// The limit counts characters, not bytes: 5000 Hangul syllables encode
	// to 15000 UTF-8 bytes but must still be accepted.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": strings.Repeat("가", 5000),
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusCreated)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": strings.Repeat("가", 5001),
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestDeleteOwnComment(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)
	post := createTestPost(t, env, "target", "Target", nil)

	comment := models.Comment{PostID: post.ID, UserID: user.ID, Content: "mine"}
	if err := env.db.Create(&comment).Error; err != nil {
		t.Fatalf("failed creating comment: %v", err)
	}

	resp := performRequest(t, env.app, http.MethodDelete, "/api/comments/"+comment.ID.String(), nil, keyHeaders(secret))
	assertStatus(t, resp, http.StatusOK)

	var count int64
	env.db.Model(&models.Comment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected comment deleted, found %d", count)
	}
}

func TestDeleteCommentOfAnotherUser(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@inkwell.test", "password123", models.UserRoleUser)
	post := createTestPost(t, env, "target", "Target", nil)
	comment := models.Comment{PostID: post.ID, UserID: owner.ID, Content: "not yours"}
	if err := env.db.Create(&comment).Error; err != nil {
		t.Fatalf("failed creating comment: %v", err)
	}

	intruder, _ := createTestUser(t, env.db, "intruder@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, intruder, models.ScopeWrite)

	resp := performRequest(t, env.app, http.MethodDelete, "/api/comments/"+comment.ID.String(), nil, keyHeaders(secret))
	assertStatus(t, resp, http.StatusForbidden)

	var count int64
	env.db.Model(&models.Comment{}).Count(&count)
	if count != 1 {
		t.Fatalf("comment should survive, found %d", count)
	}
}

func TestDeleteUnknownComment(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)

	resp := performRequest(t, env.app, http.MethodDelete, "/api/comments/11111111-2222-3333-4444-555555555555", nil, keyHeaders(secret))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestCommentWithDeactivatedAccountKey(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "gone@inkwell.test", "password123", models.UserRoleUser)
	_, secret := createTestAPIKey(t, env, user, models.ScopeWrite)
	env.db.Model(user).UpdateColumn("active", false)
	createTestPost(t, env, "target", "Target", nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/posts/target/comments", map[string]any{
		"content": "hello",
	}, keyHeaders(secret))
	assertStatus(t, resp, http.StatusForbidden)
	assertErrorMessage(t, decodeJSONMap(t, resp), "API key belongs to an inactive account")
}
