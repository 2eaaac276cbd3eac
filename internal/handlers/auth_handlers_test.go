package handlers

import (
	"net/http"
	"testing"

	"github.com/inkwell/backend/internal/models"
)

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":       "writer@inkwell.test",
		"password":    "correct-horse",
		"displayName": "Writer",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	if body["token"] == "" || body["token"] == nil {
		t.Fatalf("expected a session token, got %+v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "writer@inkwell.test" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
	if user["role"] != "user" {
		t.Fatalf("expected role 'user', got %v", user["role"])
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "writer@inkwell.test",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
}

func TestRegisterAdminEmailGetsAdminRole(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "owner@inkwell.test",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	var user models.User
	if err := env.db.First(&user, "email = ?", "owner@inkwell.test").Error; err != nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if user.Role != models.UserRoleAdmin {
		t.Fatalf("expected admin role, got %s", user.Role)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "taken@inkwell.test", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "taken@inkwell.test",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorMessage(t, decodeJSONMap(t, resp), "email is already registered")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "short@inkwell.test",
		"password": "short",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "writer@inkwell.test", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "writer@inkwell.test",
		"password": "wrong-password",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	assertErrorMessage(t, decodeJSONMap(t, resp), "invalid email or password")
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "gone@inkwell.test", "password123", models.UserRoleUser)
	env.db.Model(user).UpdateColumn("active", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "gone@inkwell.test",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
}

func TestMeRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestMeReturnsCurrentUser(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "me@inkwell.test", "password123", models.UserRoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	if body["email"] != "me@inkwell.test" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGoogleLoginRedirectDisabled(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/google", nil, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}
