package domain

import "time"

// Enquiry is a contact-form submission. Rows are never updated or deleted.
type Enquiry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id" csv:"id"`
	Name       string    `gorm:"not null" json:"name" csv:"name"`
	Email      string    `gorm:"not null" json:"email" csv:"email"`
	Phone      string    `gorm:"not null;default:''" json:"phone" csv:"phone"`
	Message    string    `gorm:"type:text;not null" json:"message" csv:"message"`
	SourcePage string    `gorm:"not null;default:''" json:"source_page" csv:"source_page"`
	CreatedAt  time.Time `gorm:"index" json:"created_at" csv:"created_at"`
}

// TableName Specify table name
func (Enquiry) TableName() string {
	return "enquiries"
}
