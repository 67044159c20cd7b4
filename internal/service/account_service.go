package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/database"
	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/logger"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountResponse never exposes anything the identity provider owns beyond contact data.
type AccountResponse struct {
	ID                   uuid.UUID              `json:"id"`
	SubjectID            string                 `json:"subject_id"`
	Email                string                 `json:"email"`
	FullName             string                 `json:"full_name,omitempty"`
	Role                 model.Role             `json:"role"`
	IsApproved           bool                   `json:"is_approved"`
	EmailVerified        bool                   `json:"email_verified"`
	Permissions          model.PermissionMatrix `json:"permissions"`
	EffectivePermissions model.PermissionMatrix `json:"effective_permissions"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

func NewAccountResponse(a *model.Account) AccountResponse {
	return AccountResponse{
		ID:                   a.ID,
		SubjectID:            a.SubjectID,
		Email:                a.Email,
		FullName:             a.FullName,
		Role:                 a.Role,
		IsApproved:           a.IsApproved,
		EmailVerified:        a.EmailVerified,
		Permissions:          a.PermissionMatrix(),
		EffectivePermissions: a.EffectivePermissions(),
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

// AccountService is the user directory: it maps identities to local accounts
// and owns every write to role, approval and the permission matrix.
type AccountService interface {
	// Resolve returns the account for a verified identity, provisioning an
	// unapproved CUSTOMER account on first sight.
	Resolve(ctx context.Context, id *identity.Identity) (*model.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	List(ctx context.Context, filter repository.AccountFilter, page pagination.Params) ([]model.Account, int64, error)
	SetApproval(ctx context.Context, actor Actor, id uuid.UUID, approved bool) (*model.Account, error)
	ChangeRole(ctx context.Context, actor Actor, id uuid.UUID, role model.Role) (*model.Account, error)
	// ReplacePermissions installs exactly the submitted matrix.
	ReplacePermissions(ctx context.Context, actor Actor, id uuid.UUID, raw map[string]string) (*model.Account, error)
	// MergePermissions overlays the submitted modules on the current matrix.
	MergePermissions(ctx context.Context, actor Actor, id uuid.UUID, raw map[string]string) (*model.Account, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	// GrantAdmin bootstraps an approved ADMIN account for subjectID.
	GrantAdmin(ctx context.Context, subjectID, email string) (*model.Account, error)
}

type accountService struct {
	repo      repository.AccountRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	cache     *cache.AccountCache
}

func NewAccountService(
	repo repository.AccountRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	accountCache *cache.AccountCache,
) AccountService {
	return &accountService{
		repo:      repo,
		auditRepo: auditRepo,
		txManager: txManager,
		cache:     accountCache,
	}
}

func (s *accountService) Resolve(ctx context.Context, id *identity.Identity) (*model.Account, error) {
	if id == nil || id.SubjectID == "" {
		return nil, ErrUnauthenticated
	}
	if account, ok := s.cache.Get(ctx, id.SubjectID); ok {
		return account, nil
	}

	account, err := s.repo.FindBySubjectID(ctx, id.SubjectID)
	if err == nil {
		s.cache.Set(ctx, account)
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	account = &model.Account{
		SubjectID:     id.SubjectID,
		Email:         id.Email,
		FullName:      id.FullName,
		Role:          model.RoleCustomer,
		EmailVerified: id.EmailVerified,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, account); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, Actor{}, model.ActionProvisionAccount,
			account.ID.String(), account.Email, map[string]interface{}{"subject_id": account.SubjectID})
	})
	if err != nil {
		// Two first requests for the same subject race on the unique index.
		if database.IsUniqueViolation(err) {
			return s.repo.FindBySubjectID(ctx, id.SubjectID)
		}
		return nil, fmt.Errorf("provision account: %w", err)
	}

	logger.WithCtx(ctx).Info("account provisioned", "account_id", account.ID, "email", account.Email)
	return account, nil
}

func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("account", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return account, nil
}

// getForUpdate loads the account under a row lock. Callers must be inside a
// transaction.
func (s *accountService) getForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("account", id)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return account, nil
}

func (s *accountService) List(ctx context.Context, filter repository.AccountFilter, page pagination.Params) ([]model.Account, int64, error) {
	return s.repo.List(ctx, filter, page.Offset, page.Limit)
}

// mutate loads the target inside a transaction, applies fn, writes an audit
// row and reloads. The cache entry is dropped once the write commits.
func (s *accountService) mutate(ctx context.Context, actor Actor, id uuid.UUID, action string, fn func(txCtx context.Context, account *model.Account) (interface{}, error)) (*model.Account, error) {
	var subjectID string
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		account, err := s.getForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		subjectID = account.SubjectID

		details, err := fn(txCtx, account)
		if err != nil {
			return err
		}
		if err := writeAudit(txCtx, s.auditRepo, actor, action, account.ID.String(), account.Email, details); err != nil {
			return err
		}
		repository.AfterCommit(txCtx, func() { s.cache.Invalidate(ctx, subjectID) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *accountService) SetApproval(ctx context.Context, actor Actor, id uuid.UUID, approved bool) (*model.Account, error) {
	if actor.is(id) {
		return nil, validation("is_approved", "you cannot change your own approval status")
	}
	return s.mutate(ctx, actor, id, model.ActionUpdateApproval, func(txCtx context.Context, account *model.Account) (interface{}, error) {
		if !approved && account.IsApproved {
			return nil, validation("is_approved", "an approved account cannot be declined")
		}
		if err := s.repo.UpdateApproval(txCtx, account.ID, approved); err != nil {
			return nil, err
		}
		return map[string]interface{}{"from": account.IsApproved, "to": approved}, nil
	})
}

func (s *accountService) ChangeRole(ctx context.Context, actor Actor, id uuid.UUID, role model.Role) (*model.Account, error) {
	if !role.Valid() {
		return nil, validation("role", "must be ADMIN, STAFF or CUSTOMER")
	}
	if actor.is(id) {
		return nil, validation("role", "you cannot change your own role")
	}
	return s.mutate(ctx, actor, id, model.ActionChangeRole, func(txCtx context.Context, account *model.Account) (interface{}, error) {
		if err := s.repo.UpdateRole(txCtx, account.ID, role); err != nil {
			return nil, err
		}
		switch {
		case role == model.RoleStaff && account.PermissionMatrix() == nil:
			if err := s.repo.ReplacePermissions(txCtx, account.ID, model.DefaultStaffPermissions().Rows(account.ID)); err != nil {
				return nil, err
			}
		case role != model.RoleStaff:
			if err := s.repo.DeletePermissions(txCtx, account.ID); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{"from": account.Role, "to": role}, nil
	})
}

func (s *accountService) ReplacePermissions(ctx context.Context, actor Actor, id uuid.UUID, raw map[string]string) (*model.Account, error) {
	matrix, err := ValidatePermissionMatrix(raw)
	if err != nil {
		return nil, err
	}
	return s.writePermissions(ctx, actor, id, func(model.PermissionMatrix) model.PermissionMatrix {
		return matrix
	})
}

func (s *accountService) MergePermissions(ctx context.Context, actor Actor, id uuid.UUID, raw map[string]string) (*model.Account, error) {
	patch, err := ValidatePermissionMatrix(raw)
	if err != nil {
		return nil, err
	}
	return s.writePermissions(ctx, actor, id, func(current model.PermissionMatrix) model.PermissionMatrix {
		merged := make(model.PermissionMatrix, len(current)+len(patch))
		for m, l := range current {
			merged[m] = l
		}
		for m, l := range patch {
			merged[m] = l
		}
		return merged
	})
}

func (s *accountService) writePermissions(ctx context.Context, actor Actor, id uuid.UUID, build func(current model.PermissionMatrix) model.PermissionMatrix) (*model.Account, error) {
	return s.mutate(ctx, actor, id, model.ActionUpdatePermissions, func(txCtx context.Context, account *model.Account) (interface{}, error) {
		if account.Role != model.RoleStaff {
			return nil, validation("permissions", "permissions can only be set on STAFF accounts")
		}
		current := account.PermissionMatrix()
		if current == nil {
			current = model.DefaultStaffPermissions()
		}
		next := build(current).Complete()
		if next.Level(model.ModuleUsers) == model.LevelEdit {
			return nil, validation("permissions.users", "staff accounts cannot be granted edit on users")
		}
		if err := s.repo.ReplacePermissions(txCtx, account.ID, next.Rows(account.ID)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"from": current, "to": next}, nil
	})
}

func (s *accountService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if actor.is(id) {
		return validation("id", "you cannot delete your own account")
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		account, err := s.getForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, account.ID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteAccount, account.ID.String(), account.Email,
			map[string]interface{}{"role": account.Role}); err != nil {
			return err
		}
		subjectID := account.SubjectID
		repository.AfterCommit(txCtx, func() { s.cache.Invalidate(ctx, subjectID) })
		return nil
	})
}

func (s *accountService) GrantAdmin(ctx context.Context, subjectID, email string) (*model.Account, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, validation("subject", "is required")
	}

	var accountID uuid.UUID
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		account, err := s.repo.FindBySubjectID(txCtx, subjectID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			account = &model.Account{SubjectID: subjectID, Email: email, Role: model.RoleAdmin, IsApproved: true}
			if err := s.repo.Create(txCtx, account); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := s.repo.UpdateRole(txCtx, account.ID, model.RoleAdmin); err != nil {
				return err
			}
			if err := s.repo.UpdateApproval(txCtx, account.ID, true); err != nil {
				return err
			}
			if err := s.repo.DeletePermissions(txCtx, account.ID); err != nil {
				return err
			}
		}
		accountID = account.ID
		repository.AfterCommit(txCtx, func() { s.cache.Invalidate(ctx, subjectID) })
		return writeAudit(txCtx, s.auditRepo, Actor{}, model.ActionChangeRole, account.ID.String(), account.Email,
			map[string]interface{}{"to": model.RoleAdmin, "source": "cli"})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, accountID)
}
