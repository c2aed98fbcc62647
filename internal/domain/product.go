package domain

import "time"

// Product is a catalogue entry shown on the public site.
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Price       int64     `gorm:"not null" json:"price"` // minor currency unit
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	Image       string    `gorm:"size:1024;not null" json:"image"` // public path of the stored image
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "products"
}

// ProductInput is the editable field set resubmitted on every create or update.
type ProductInput struct {
	Name        string
	Price       string // raw form value, parsed by the catalogue service
	Description string
}
