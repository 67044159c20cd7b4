package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Module is an administrative resource area under independent permission control.
type Module string

const (
	ModuleProducts   Module = "products"
	ModuleOrders     Module = "orders"
	ModuleInventory  Module = "inventory"
	ModuleCategories Module = "categories"
	ModuleAttributes Module = "attributes"
	ModuleAnalytics  Module = "analytics"
	ModuleUsers      Module = "users"
)

// Modules is the closed set of permission modules.
var Modules = []Module{
	ModuleProducts,
	ModuleOrders,
	ModuleInventory,
	ModuleCategories,
	ModuleAttributes,
	ModuleAnalytics,
	ModuleUsers,
}

func (m Module) Valid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

// PermissionLevel is ordered: NONE < VIEW < EDIT.
type PermissionLevel int

const (
	LevelNone PermissionLevel = iota
	LevelView
	LevelEdit
)

// ParsePermissionLevel accepts exactly "none", "view" or "edit".
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "view":
		return LevelView, nil
	case "edit":
		return LevelEdit, nil
	}
	return LevelNone, fmt.Errorf("invalid permission level %q: must be none, view or edit", s)
}

func (l PermissionLevel) String() string {
	switch l {
	case LevelView:
		return "view"
	case LevelEdit:
		return "edit"
	default:
		return "none"
	}
}

// Satisfies reports whether l grants at least required.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	return l >= required
}

func (l PermissionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *PermissionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParsePermissionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Scan parses the stored level string once at the database boundary.
func (l *PermissionLevel) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return l.UnmarshalText([]byte(v))
	case []byte:
		return l.UnmarshalText(v)
	case nil:
		*l = LevelNone
		return nil
	}
	return fmt.Errorf("cannot scan %T into PermissionLevel", value)
}

func (l PermissionLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

// PermissionMatrix maps modules to granted levels. Missing modules mean NONE.
type PermissionMatrix map[Module]PermissionLevel

// Level returns the granted level for m, NONE when absent.
func (pm PermissionMatrix) Level(m Module) PermissionLevel {
	if pm == nil {
		return LevelNone
	}
	return pm[m]
}

// Complete returns a copy covering every module, with absent modules at
// NONE. A stored matrix is always complete, so an emptied matrix never reads
// back as missing.
func (pm PermissionMatrix) Complete() PermissionMatrix {
	out := make(PermissionMatrix, len(Modules))
	for _, m := range Modules {
		out[m] = pm.Level(m)
	}
	return out
}

// DefaultStaffPermissions is installed for staff accounts without a matrix.
func DefaultStaffPermissions() PermissionMatrix {
	return PermissionMatrix{
		ModuleProducts:   LevelView,
		ModuleOrders:     LevelView,
		ModuleInventory:  LevelView,
		ModuleCategories: LevelView,
		ModuleAttributes: LevelView,
		ModuleAnalytics:  LevelView,
		ModuleUsers:      LevelNone,
	}
}

// AccountPermission is one row of a staff account's module matrix.
type AccountPermission struct {
	AccountID uuid.UUID       `gorm:"type:uuid;primaryKey" json:"-"`
	Module    Module          `gorm:"type:varchar(50);primaryKey" json:"module"`
	Level     PermissionLevel `gorm:"type:varchar(10);not null" json:"level"`
}

// Rows flattens the matrix for persistence.
func (pm PermissionMatrix) Rows(accountID uuid.UUID) []AccountPermission {
	rows := make([]AccountPermission, 0, len(pm))
	for _, m := range Modules {
		if level, ok := pm[m]; ok {
			rows = append(rows, AccountPermission{AccountID: accountID, Module: m, Level: level})
		}
	}
	return rows
}
