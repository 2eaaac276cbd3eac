package models

import "gorm.io/gorm"

// Post holds the raw Markdown body; CreatedAt carries the frontmatter date
// when one was supplied, otherwise the ingestion time.
type Post struct {
	BaseModel
	Title    string    `json:"title" gorm:"type:varchar(300);not null"`
	Slug     string    `json:"slug" gorm:"type:varchar(300);not null;uniqueIndex"`
	Summary  string    `json:"summary" gorm:"type:text;not null;default:''"`
	Tags     []string  `json:"tags" gorm:"type:jsonb;serializer:json"`
	Body     string    `json:"body" gorm:"type:text;not null"`
	Comments []Comment `json:"-" gorm:"foreignKey:PostID"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return nil
}
