package models

import (
	"time"
)

// Cart statuses. Transitions are forward only: a cart starts ready to
// pay and either becomes paid or stalls at failed.
const (
	StatusReadyToPay = "ready to pay"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Name         string    `gorm:"size:64" json:"name"`
	Email        string    `gorm:"size:120;uniqueIndex;not null" json:"-"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	MemberSince  time.Time `gorm:"not null" json:"member_since"`
	LastSeen     time.Time `gorm:"not null" json:"last_seen"`
}

// Token pairs an access secret with a refresh secret. Both are opaque
// random values; the pair is looked up in the database on every check.
type Token struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	AccessToken       string    `gorm:"size:64;index;not null" json:"access_token"`
	AccessExpiration  time.Time `gorm:"not null" json:"access_expiration"`
	RefreshToken      string    `gorm:"size:64;index;not null" json:"refresh_token"`
	RefreshExpiration time.Time `gorm:"not null" json:"refresh_expiration"`
	UserID            uint      `gorm:"index;not null" json:"user_id"`
}

type Cart struct {
	ID     uint       `gorm:"primaryKey" json:"id"`
	UserID uint       `gorm:"index;not null" json:"user_id"`
	Status string     `gorm:"size:32;not null" json:"status"`
	Items  []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
}

// CartItem quantity is always >= 1; an item decremented to zero is
// deleted, never persisted.
type CartItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CartID    uint `gorm:"index;not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_cart_product" json:"product_id"`
	Quantity  uint `gorm:"not null;check:quantity>0" json:"quantity"`
}

type ProductCategory struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:64;uniqueIndex;not null" json:"name"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:120;index;not null" json:"name"`
	Description string  `json:"description"`
	Price       float64 `gorm:"not null" json:"price"`
	CategoryID  uint    `gorm:"index;not null" json:"category_id"`
}

// WebhookEvent records provider event IDs that were already processed,
// so a redelivered event never repeats side effects.
type WebhookEvent struct {
	EventID     string    `gorm:"primaryKey;size:128" json:"event_id"`
	EventType   string    `gorm:"size:64;index" json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
