package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionLevelOrdering(t *testing.T) {
	assert.True(t, LevelEdit.Satisfies(LevelView))
	assert.True(t, LevelEdit.Satisfies(LevelEdit))
	assert.True(t, LevelView.Satisfies(LevelView))
	assert.False(t, LevelView.Satisfies(LevelEdit))
	assert.False(t, LevelNone.Satisfies(LevelView))
	assert.True(t, LevelNone.Satisfies(LevelNone))
}

func TestParsePermissionLevel(t *testing.T) {
	for _, s := range []string{"none", "view", "edit"} {
		l, err := ParsePermissionLevel(s)
		require.NoError(t, err)
		assert.Equal(t, s, l.String())
	}

	for _, s := range []string{"", "EDIT", "admin", "write"} {
		_, err := ParsePermissionLevel(s)
		assert.Error(t, err, s)
	}
}

func TestPermissionLevelScan(t *testing.T) {
	var l PermissionLevel
	require.NoError(t, l.Scan("edit"))
	assert.Equal(t, LevelEdit, l)
	require.NoError(t, l.Scan([]byte("view")))
	assert.Equal(t, LevelView, l)
	assert.Error(t, l.Scan(42))
	assert.Error(t, l.Scan("root"))

	v, err := LevelView.Value()
	require.NoError(t, err)
	assert.Equal(t, "view", v)
}

func TestPermissionMatrixJSON(t *testing.T) {
	m := PermissionMatrix{ModuleProducts: LevelEdit, ModuleUsers: LevelNone}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"products":"edit","users":"none"}`, string(raw))

	var back PermissionMatrix
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, m, back)
}

func TestModuleValid(t *testing.T) {
	assert.True(t, ModuleInventory.Valid())
	assert.False(t, Module("billing").Valid())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("staff")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, r)

	_, err = ParseRole("USER")
	assert.Error(t, err)
}

func TestEffectivePermissions(t *testing.T) {
	admin := &Account{Role: RoleAdmin}
	for _, m := range Modules {
		assert.Equal(t, LevelEdit, admin.EffectivePermissions().Level(m))
	}

	staff := &Account{Role: RoleStaff}
	assert.Equal(t, DefaultStaffPermissions(), staff.EffectivePermissions())

	id := uuid.New()
	staff.Permissions = []AccountPermission{{AccountID: id, Module: ModuleOrders, Level: LevelEdit}}
	eff := staff.EffectivePermissions()
	assert.Equal(t, LevelEdit, eff.Level(ModuleOrders))
	assert.Equal(t, LevelNone, eff.Level(ModuleProducts))

	customer := &Account{Role: RoleCustomer}
	assert.Empty(t, customer.EffectivePermissions())
}

func TestMatrixRowsFollowModuleOrder(t *testing.T) {
	id := uuid.New()
	rows := PermissionMatrix{ModuleUsers: LevelView, ModuleProducts: LevelEdit}.Rows(id)
	require.Len(t, rows, 2)
	assert.Equal(t, ModuleProducts, rows[0].Module)
	assert.Equal(t, ModuleUsers, rows[1].Module)
	assert.Equal(t, id, rows[0].AccountID)
}

func TestOrderRecalculateTotal(t *testing.T) {
	o := &Order{
		Subtotal:       decimal.RequireFromString("100.00"),
		ShippingCost:   decimal.RequireFromString("10.50"),
		TaxAmount:      decimal.RequireFromString("12.00"),
		DiscountAmount: decimal.RequireFromString("5.25"),
	}
	o.RecalculateTotal()
	assert.True(t, decimal.RequireFromString("117.25").Equal(o.Total), o.Total.String())
}

func TestVariantEffectivePrice(t *testing.T) {
	parent := &Product{BasePrice: decimal.NewFromInt(20)}
	v := &ProductVariant{}
	assert.True(t, decimal.NewFromInt(20).Equal(v.EffectivePrice(parent)))

	p := decimal.NewFromInt(25)
	v.Price = &p
	assert.True(t, p.Equal(v.EffectivePrice(parent)))
}
