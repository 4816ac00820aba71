package domain

import "time"

// Product is the registry entry for a product identity. Rows are never
// hard-deleted; deactivation is a soft state.
type Product struct {
	ProductID            string     `json:"product_id" gorm:"column:product_id;primaryKey;type:varchar(255)"`
	Name                 string     `json:"name" gorm:"type:text;not null"`
	Batch                *string    `json:"batch,omitempty" gorm:"type:text;index"`
	IsActive             bool       `json:"is_active" gorm:"column:is_active;not null"`
	DeactivatedAt        *time.Time `json:"deactivated_at,omitempty" gorm:"column:deactivated_at"`
	DeactivationReason   *string    `json:"deactivation_reason,omitempty" gorm:"column:deactivation_reason;type:text"`
	LastTokenFingerprint *string    `json:"last_token_fingerprint,omitempty" gorm:"column:last_token_fingerprint;type:text"`
	LastTokenIssuedAt    *time.Time `json:"last_token_issued_at,omitempty" gorm:"column:last_token_issued_at"`
	LastTokenExpiresAt   *time.Time `json:"last_token_expires_at,omitempty" gorm:"column:last_token_expires_at"`
	LastKeyID            *string    `json:"last_key_id,omitempty" gorm:"column:last_key_id;type:text"`
	CreatedAt            time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time  `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
