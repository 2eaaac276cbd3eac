package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell/backend/internal/models"
	"github.com/inkwell/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	keySecretBytes  = 36
	keySecretPrefix = "bk_"
	keyPrefixLen    = 8
)

type APIKeyService struct {
	DB *gorm.DB
}

func NewAPIKeyService(db *gorm.DB) *APIKeyService {
	return &APIKeyService{DB: db}
}

// Issue creates a new API key for the user and returns the plaintext secret
// exactly once. Only admins may mint admin-scoped keys; anyone else asking
// for admin is silently downgraded to write. Unknown scopes fall back to
// read.
func (s *APIKeyService) Issue(user *models.User, name string, scope models.KeyScope, expiresDays int) (*models.APIKey, string, error) {
	if !scope.Valid() {
		scope = models.ScopeRead
	}
	if scope == models.ScopeAdmin && !user.IsAdmin() {
		scope = models.ScopeWrite
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generating api key secret: %w", err)
	}

	var expiresAt *time.Time
	if expiresDays > 0 {
		t := time.Now().AddDate(0, 0, expiresDays)
		expiresAt = &t
	}

	key := models.APIKey{
		UserID:    user.ID,
		Name:      name,
		KeyHash:   hashSecret(secret),
		KeyPrefix: secret[:keyPrefixLen],
		Scope:     scope,
		Active:    true,
		ExpiresAt: expiresAt,
	}

	if err := s.DB.Create(&key).Error; err != nil {
		return nil, "", err
	}

	return &key, secret, nil
}

// Verify resolves a presented secret to its stored key, or nil when nothing
// matches. The prefix narrows the lookup; admission depends solely on a
// constant-time hash match. The digest is computed even for garbage input so
// the lookup cost does not reveal whether a prefix exists.
func (s *APIKeyService) Verify(presented string) (*models.APIKey, error) {
	hash := hashSecret(presented)
	if len(presented) < keyPrefixLen {
		return nil, nil
	}
	prefix := presented[:keyPrefixLen]

	var candidates []models.APIKey
	if err := s.DB.Preload("User").Where("key_prefix = ?", prefix).Find(&candidates).Error; err != nil {
		return nil, err
	}

	for i := range candidates {
		if subtle.ConstantTimeCompare([]byte(candidates[i].KeyHash), []byte(hash)) == 1 {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// MarkUsed stamps last_used_at. Best-effort bookkeeping: a storage error is
// logged but never blocks the request.
func (s *APIKeyService) MarkUsed(key *models.APIKey) {
	now := time.Now()
	err := s.DB.Model(&models.APIKey{}).
		Where("id = ?", key.ID).
		UpdateColumn("last_used_at", now).Error
	if err != nil {
		logger.Warn("api_key_mark_used_failed", map[string]interface{}{
			"key_id": key.ID.String(),
			"error":  err.Error(),
		})
		return
	}
	key.LastUsedAt = &now
}

// Deactivate soft-revokes one of the user's own keys. There is no
// reactivation path.
func (s *APIKeyService) Deactivate(userID, keyID uuid.UUID) error {
	var key models.APIKey
	if err := s.DB.First(&key, "id = ? AND user_id = ?", keyID, userID).Error; err != nil {
		return err
	}
	return s.DB.Model(&key).UpdateColumn("active", false).Error
}

func generateSecret() (string, error) {
	raw := make([]byte, keySecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return keySecretPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
