package service

import (
	"context"
	"testing"

	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/testutil"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) auditActions(t *testing.T, entityID string) []string {
	t.Helper()
	logs, _, err := e.audit.List(context.Background(), repository.AuditFilter{EntityID: entityID}, pagination.New(1, 100))
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

func TestResolve_ProvisionsCustomerOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := &identity.Identity{SubjectID: "sub-1", Email: "new@example.com", FullName: "New User", EmailVerified: true}

	first, err := env.accounts.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, first.Role)
	assert.False(t, first.IsApproved)
	assert.True(t, first.EmailVerified)
	assert.Equal(t, "New User", first.FullName)

	second, err := env.accounts.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, env.countRows(t, &model.Account{}))
	assert.Equal(t, []string{model.ActionProvisionAccount}, env.auditActions(t, first.ID.String()))

	_, err = env.accounts.Resolve(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = env.accounts.Resolve(ctx, &identity.Identity{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestChangeRole_InstallsDefaultStaffMatrix(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	target := testutil.SeedAccount(t, env.db, model.RoleCustomer, true, nil)
	actor := ActorFrom(admin)
	ctx := context.Background()

	promoted, err := env.accounts.ChangeRole(ctx, actor, target.ID, model.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, promoted.Role)
	assert.Equal(t, model.DefaultStaffPermissions(), promoted.PermissionMatrix())

	demoted, err := env.accounts.ChangeRole(ctx, actor, target.ID, model.RoleCustomer)
	require.NoError(t, err)
	assert.Nil(t, demoted.PermissionMatrix())

	_, err = env.accounts.ChangeRole(ctx, actor, admin.ID, model.RoleStaff)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)

	_, err = env.accounts.ChangeRole(ctx, actor, target.ID, "OWNER")
	assert.ErrorAs(t, err, &verr)

	assert.Equal(t, []string{model.ActionChangeRole, model.ActionChangeRole}, env.auditActions(t, target.ID.String()))
}

func TestChangeRole_KeepsExistingStaffMatrix(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	perms := model.PermissionMatrix{model.ModuleOrders: model.LevelEdit}
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, perms)

	got, err := env.accounts.ChangeRole(context.Background(), ActorFrom(admin), target.ID, model.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, perms, got.PermissionMatrix())
}

func TestPermissions_ReplaceAndMerge(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, nil)
	actor := ActorFrom(admin)
	ctx := context.Background()

	merged, err := env.accounts.MergePermissions(ctx, actor, target.ID, map[string]string{"orders": "edit"})
	require.NoError(t, err)
	want := model.DefaultStaffPermissions()
	want[model.ModuleOrders] = model.LevelEdit
	assert.Equal(t, want, merged.PermissionMatrix())

	replaced, err := env.accounts.ReplacePermissions(ctx, actor, target.ID, map[string]string{"inventory": "edit", "users": "view"})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionMatrix{
		model.ModuleProducts:   model.LevelNone,
		model.ModuleOrders:     model.LevelNone,
		model.ModuleInventory:  model.LevelEdit,
		model.ModuleCategories: model.LevelNone,
		model.ModuleAttributes: model.LevelNone,
		model.ModuleAnalytics:  model.LevelNone,
		model.ModuleUsers:      model.LevelView,
	}, replaced.PermissionMatrix())

	assert.True(t, NewEvaluator().Evaluate(replaced, model.ModuleUsers, model.LevelView).Allowed)
	assert.False(t, NewEvaluator().Evaluate(replaced, model.ModuleOrders, model.LevelView).Allowed)
}

func TestPermissions_ReplaceWithEmptyRevokesEverything(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, model.PermissionMatrix{model.ModuleOrders: model.LevelEdit})
	ctx := context.Background()

	revoked, err := env.accounts.ReplacePermissions(ctx, ActorFrom(admin), target.ID, map[string]string{})
	require.NoError(t, err)

	require.NotNil(t, revoked.PermissionMatrix())
	for _, m := range model.Modules {
		assert.Equal(t, model.LevelNone, revoked.EffectivePermissions()[m], m)
		assert.False(t, NewEvaluator().Evaluate(revoked, m, model.LevelView).Allowed, m)
	}
	assert.EqualValues(t, len(model.Modules), env.countRows(t, &model.AccountPermission{}))
}

func TestPermissions_UsersEditNeverStored(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	perms := model.PermissionMatrix{model.ModuleProducts: model.LevelView}
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, perms)
	actor := ActorFrom(admin)
	ctx := context.Background()

	for _, write := range []func(context.Context, Actor, uuid.UUID, map[string]string) (*model.Account, error){
		func(ctx context.Context, a Actor, id uuid.UUID, raw map[string]string) (*model.Account, error) {
			return env.accounts.ReplacePermissions(ctx, a, id, raw)
		},
		func(ctx context.Context, a Actor, id uuid.UUID, raw map[string]string) (*model.Account, error) {
			return env.accounts.MergePermissions(ctx, a, id, raw)
		},
	} {
		_, err := write(ctx, actor, target.ID, map[string]string{"products": "edit", "users": "edit"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	}

	got, err := env.accounts.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, perms, got.PermissionMatrix())
	assert.Empty(t, env.auditActions(t, target.ID.String()))
}

func TestPermissions_OnlyStaff(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	customer := testutil.SeedAccount(t, env.db, model.RoleCustomer, true, nil)

	_, err := env.accounts.ReplacePermissions(context.Background(), ActorFrom(admin), customer.ID, map[string]string{"orders": "view"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, env.countRows(t, &model.AccountPermission{}))
}

func TestSetApproval(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	pending := testutil.SeedAccount(t, env.db, model.RoleStaff, false, nil)
	actor := ActorFrom(admin)
	ctx := context.Background()
	var verr *ValidationError

	_, err := env.accounts.SetApproval(ctx, actor, admin.ID, true)
	assert.ErrorAs(t, err, &verr)

	approved, err := env.accounts.SetApproval(ctx, actor, pending.ID, true)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)
	assert.True(t, NewEvaluator().Evaluate(approved, model.ModuleProducts, model.LevelView).Allowed)

	_, err = env.accounts.SetApproval(ctx, actor, pending.ID, false)
	assert.ErrorAs(t, err, &verr)

	again, err := env.accounts.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, again.IsApproved)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, model.PermissionMatrix{model.ModuleOrders: model.LevelView})
	actor := ActorFrom(admin)
	ctx := context.Background()

	var verr *ValidationError
	assert.ErrorAs(t, env.accounts.Delete(ctx, actor, admin.ID), &verr)

	require.NoError(t, env.accounts.Delete(ctx, actor, target.ID))
	_, err := env.accounts.Get(ctx, target.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Zero(t, env.countRows(t, &model.AccountPermission{}))
	assert.Equal(t, []string{model.ActionDeleteAccount}, env.auditActions(t, target.ID.String()))
}

func TestGrantAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.accounts.GrantAdmin(ctx, "boot-1", "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, created.Role)
	assert.True(t, created.IsApproved)

	existing := testutil.SeedAccount(t, env.db, model.RoleStaff, false, model.PermissionMatrix{model.ModuleOrders: model.LevelView})
	promoted, err := env.accounts.GrantAdmin(ctx, existing.SubjectID, "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, promoted.ID)
	assert.Equal(t, model.RoleAdmin, promoted.Role)
	assert.True(t, promoted.IsApproved)
	assert.Nil(t, promoted.PermissionMatrix())

	_, err = env.accounts.GrantAdmin(ctx, "  ", "x@example.com")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestListAccounts(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	testutil.SeedAccount(t, env.db, model.RoleStaff, false, nil)
	testutil.SeedAccount(t, env.db, model.RoleStaff, true, nil)

	pending := false
	list, total, err := env.accounts.List(context.Background(),
		repository.AccountFilter{Role: model.RoleStaff, IsApproved: &pending}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsApproved)
}
