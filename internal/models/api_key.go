package models

import (
	"time"

	"github.com/google/uuid"
)

type KeyScope string

const (
	ScopeRead  KeyScope = "read"
	ScopeWrite KeyScope = "write"
	ScopeAdmin KeyScope = "admin"
)

// scopeLevels orders scopes so that a higher scope implies every lower one.
var scopeLevels = map[KeyScope]int{
	ScopeRead:  0,
	ScopeWrite: 1,
	ScopeAdmin: 2,
}

func (s KeyScope) Valid() bool {
	_, ok := scopeLevels[s]
	return ok
}

// APIKey stores only the SHA-256 hash of the issued secret. The first eight
// characters of the plaintext are kept as an indexed prefix to narrow lookup;
// authentication always requires a full hash match.
type APIKey struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`
	KeyHash    string     `json:"-" gorm:"type:char(64);not null;uniqueIndex"`
	KeyPrefix  string     `json:"prefix" gorm:"type:varchar(8);not null;index"`
	Scope      KeyScope   `json:"scope" gorm:"type:varchar(10);not null;default:'read'"`
	Active     bool       `json:"active" gorm:"not null;default:true"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" gorm:"index"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	User       User       `json:"-" gorm:"foreignKey:UserID"`
}

func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// HasScope reports whether the key's scope is at least the required one.
func (k *APIKey) HasScope(required KeyScope) bool {
	return scopeLevels[k.Scope] >= scopeLevels[required]
}

// Masked returns the only representation of the secret that can still be
// shown after issuance.
func (k *APIKey) Masked() string {
	return k.KeyPrefix + "..."
}
