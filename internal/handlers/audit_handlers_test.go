package handlers

import (
	"net/http"
	"testing"

	"github.com/inkwell/backend/internal/models"
)

func TestAuditListRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "user@inkwell.test", "password123", models.UserRoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/audit", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)
	assertErrorMessage(t, decodeJSONMap(t, resp), "admin access required")
}

func TestAuditList(t *testing.T) {
	env := setupTestEnv(t)
	admin, token := createTestUser(t, env.db, "admin@inkwell.test", "password123", models.UserRoleAdmin)

	entries := []models.AuditLog{
		{UserID: &admin.ID, Action: "post_uploaded", ResourceType: "post", IPAddress: "127.0.0.1"},
		{UserID: &admin.ID, Action: "comment_created", ResourceType: "comment", IPAddress: "127.0.0.1"},
	}
	for i := range entries {
		if err := env.db.Create(&entries[i]).Error; err != nil {
			t.Fatalf("failed creating audit entry: %v", err)
		}
	}

	resp := performRequest(t, env.app, http.MethodGet, "/api/audit", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	list, _ := body["entries"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %+v", body)
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit?action=post_uploaded", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body = decodeJSONMap(t, resp)
	list, _ = body["entries"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 filtered entry, got %+v", body)
	}
}
