package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the coarse access tier of an account.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleCustomer Role = "CUSTOMER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	}
	return false
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be ADMIN, STAFF or CUSTOMER", s)
	}
	return r, nil
}

// Account is the local record of an identity-provider subject.
type Account struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectID     string              `gorm:"type:varchar(255);uniqueIndex;not null" json:"subject_id"`
	Email         string              `gorm:"type:varchar(255);index;not null" json:"email"`
	FullName      string              `gorm:"type:varchar(255)" json:"full_name,omitempty"`
	Role          Role                `gorm:"type:varchar(20);not null;default:'CUSTOMER'" json:"role"`
	IsApproved    bool                `gorm:"not null;default:false" json:"is_approved"`
	EmailVerified bool                `gorm:"not null;default:false" json:"email_verified"`
	Permissions   []AccountPermission `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"permissions,omitempty"`
	CreatedAt     time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// PermissionMatrix returns the stored module levels, or nil when the account
// has no permission rows at all.
func (a *Account) PermissionMatrix() PermissionMatrix {
	if len(a.Permissions) == 0 {
		return nil
	}
	m := make(PermissionMatrix, len(a.Permissions))
	for _, p := range a.Permissions {
		m[p.Module] = p.Level
	}
	return m
}

// EffectivePermissions is the matrix the evaluator applies: every module at
// EDIT for admins, the stored or default matrix for staff, nothing for customers.
func (a *Account) EffectivePermissions() PermissionMatrix {
	switch a.Role {
	case RoleAdmin:
		m := make(PermissionMatrix, len(Modules))
		for _, mod := range Modules {
			m[mod] = LevelEdit
		}
		return m
	case RoleStaff:
		if stored := a.PermissionMatrix(); stored != nil {
			return stored
		}
		return DefaultStaffPermissions()
	default:
		return PermissionMatrix{}
	}
}
