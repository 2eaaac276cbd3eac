package models

import "github.com/google/uuid"

type Comment struct {
	BaseModel
	PostID  uuid.UUID `json:"postID" gorm:"type:uuid;not null;index"`
	UserID  uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	Content string    `json:"content" gorm:"type:text;not null"`

	Post Post `json:"-" gorm:"foreignKey:PostID"`
	User User `json:"-" gorm:"foreignKey:UserID"`
}
