package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateProduct = "CREATE_PRODUCT"
	ActionUpdateProduct = "UPDATE_PRODUCT"
	ActionDeleteProduct = "DELETE_PRODUCT"
	ActionCreateVariant = "CREATE_VARIANT"
	ActionUpdateVariant = "UPDATE_VARIANT"
	ActionDeleteVariant = "DELETE_VARIANT"

	ActionUpdateOrder = "UPDATE_ORDER"
	ActionDeleteOrder = "DELETE_ORDER"

	// Account administration
	ActionProvisionAccount  = "PROVISION_ACCOUNT"
	ActionUpdateApproval    = "UPDATE_ACCOUNT_APPROVAL"
	ActionChangeRole        = "CHANGE_ACCOUNT_ROLE"
	ActionUpdatePermissions = "UPDATE_ACCOUNT_PERMISSIONS"
	ActionDeleteAccount     = "DELETE_ACCOUNT"
)

// AuditLog tracks who changed what, written in the same transaction as the change.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index" json:"actor_id"`                // nil for system actions
	ActorEmail string     `gorm:"type:varchar(255)" json:"actor_email,omitempty"` // snapshot, survives account deletion
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
