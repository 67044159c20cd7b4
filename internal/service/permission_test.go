package service

import (
	"testing"

	"backoffice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var levels = []model.PermissionLevel{model.LevelNone, model.LevelView, model.LevelEdit}

func staff(approved bool, perms model.PermissionMatrix) *model.Account {
	a := &model.Account{Role: model.RoleStaff, IsApproved: approved}
	if perms != nil {
		a.Permissions = perms.Rows(a.ID)
	}
	return a
}

func TestEvaluate_AdminBypassesMatrix(t *testing.T) {
	e := NewEvaluator()
	admins := []*model.Account{
		{Role: model.RoleAdmin},
		{Role: model.RoleAdmin, IsApproved: true},
		{Role: model.RoleAdmin, Permissions: []model.AccountPermission{{Module: "bogus", Level: model.LevelNone}}},
		{Role: model.RoleAdmin, Permissions: model.PermissionMatrix{model.ModuleUsers: model.LevelNone}.Rows(model.Account{}.ID)},
	}
	for _, admin := range admins {
		for _, m := range model.Modules {
			for _, l := range levels {
				assert.True(t, e.Evaluate(admin, m, l).Allowed, "%s/%s", m, l)
			}
		}
	}
}

func TestEvaluate_CustomerAlwaysDenied(t *testing.T) {
	e := NewEvaluator()
	customer := &model.Account{Role: model.RoleCustomer, IsApproved: true}
	for _, m := range model.Modules {
		d := e.Evaluate(customer, m, model.LevelView)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonStaffRequired, d.Reason)
	}
}

func TestEvaluate_StaffPendingApproval(t *testing.T) {
	d := NewEvaluator().Evaluate(staff(false, nil), model.ModuleProducts, model.LevelView)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPendingApproval, d.Reason)
}

func TestEvaluate_StaffReadOnlyAndNoAccess(t *testing.T) {
	e := NewEvaluator()
	s := staff(true, model.PermissionMatrix{model.ModuleProducts: model.LevelView})

	d := e.Evaluate(s, model.ModuleProducts, model.LevelEdit)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonReadOnly, d.Reason)

	d = e.Evaluate(s, model.ModuleOrders, model.LevelView)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoAccess, d.Reason)

	assert.True(t, e.Evaluate(s, model.ModuleProducts, model.LevelView).Allowed)
}

func TestEvaluate_StaffWithoutMatrixGetsDefaults(t *testing.T) {
	e := NewEvaluator()
	s := staff(true, nil)

	for _, m := range model.Modules {
		d := e.Evaluate(s, m, model.LevelView)
		if m == model.ModuleUsers {
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonNoAccess, d.Reason)
			continue
		}
		assert.True(t, d.Allowed, m)
		assert.Equal(t, ReasonReadOnly, e.Evaluate(s, m, model.LevelEdit).Reason, m)
	}
}

func TestEvaluate_EditImpliesView(t *testing.T) {
	e := NewEvaluator()
	for _, granted := range levels {
		for _, m := range model.Modules {
			s := staff(true, model.PermissionMatrix{m: granted})
			if e.Evaluate(s, m, model.LevelEdit).Allowed {
				assert.True(t, e.Evaluate(s, m, model.LevelView).Allowed, "%s at %s", m, granted)
			}
			assert.True(t, e.Evaluate(s, m, model.LevelNone).Allowed)
		}
	}
}

func TestAuthorize(t *testing.T) {
	e := NewEvaluator()

	assert.ErrorIs(t, e.Authorize(nil, model.ModuleOrders, model.LevelView), ErrUnauthenticated)

	err := e.Authorize(staff(true, nil), model.ModuleOrders, model.LevelEdit)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "orders", denied.Module)
	assert.Equal(t, ReasonReadOnly, denied.Reason)

	assert.NoError(t, e.Authorize(&model.Account{Role: model.RoleAdmin}, model.ModuleUsers, model.LevelEdit))

	require.ErrorAs(t, e.RequireAdmin(staff(true, nil)), &denied)
	assert.NoError(t, e.RequireAdmin(&model.Account{Role: model.RoleAdmin}))
}

func TestValidatePermissionMatrix(t *testing.T) {
	got, err := ValidatePermissionMatrix(map[string]string{"orders": "edit", "users": "view", "analytics": "none"})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionMatrix{
		model.ModuleOrders:    model.LevelEdit,
		model.ModuleUsers:     model.LevelView,
		model.ModuleAnalytics: model.LevelNone,
	}, got)

	rejected := []map[string]string{
		{"users": "edit"},
		{"orders": "view", "users": "edit"},
		{"billing": "view"},
		{"orders": "admin"},
		{"orders": "EDIT"},
		{"orders": ""},
	}
	for _, raw := range rejected {
		_, err := ValidatePermissionMatrix(raw)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "%v", raw)
	}
}
