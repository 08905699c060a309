package models

import (
	"time"

	"github.com/angelmondragon/mpsync/pkg/enums"
)

// Shop is the tenant boundary owning credentials and synchronized data.
type Shop struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	IsActive  bool      `gorm:"column:is_active;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Shop) TableName() string { return "shops" }

// APIKey is a marketplace credential. A key is usable while it is active
// and DisabledUntil lies in the past.
type APIKey struct {
	ID            int64                `gorm:"column:id;primaryKey"`
	ShopID        int64                `gorm:"column:shop_id;not null"`
	Type          enums.CredentialType `gorm:"column:type;not null"`
	Name          string               `gorm:"column:name;not null"`
	ClientID      string               `gorm:"column:client_id;not null"`
	ClientSecret  string               `gorm:"column:client_secret;not null"`
	IsActive      bool                 `gorm:"column:is_active;not null;default:false"`
	DisabledUntil *time.Time           `gorm:"column:disabled_until"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (APIKey) TableName() string { return "api_keys" }

// IsCoolingDown reports whether the key is inside a rate-limit cool-down.
func (k APIKey) IsCoolingDown(now time.Time) bool {
	return k.DisabledUntil != nil && k.DisabledUntil.After(now)
}
