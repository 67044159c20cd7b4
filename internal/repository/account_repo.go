package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountFilter narrows account listings. Zero values are ignored.
type AccountFilter struct {
	Role       model.Role
	IsApproved *bool
	Search     string
}

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// FindByIDForUpdate locks the account row until the surrounding transaction
	// ends, so read-modify-write of its permissions serializes.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	List(ctx context.Context, filter AccountFilter, offset, limit int) ([]model.Account, int64, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	UpdateApproval(ctx context.Context, id uuid.UUID, approved bool) error
	// ReplacePermissions swaps the stored matrix for rows in one go.
	ReplacePermissions(ctx context.Context, id uuid.UUID, rows []model.AccountPermission) error
	DeletePermissions(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return GetDB(ctx, r.db).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).Preload("Permissions").First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	db := GetDB(ctx, r.db)
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	if err := db.Where("account_id = ?", id).Find(&account.Permissions).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).Preload("Permissions").Where("subject_id = ?", subjectID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).Preload("Permissions").Where("LOWER(email) = LOWER(?)", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, filter AccountFilter, offset, limit int) ([]model.Account, int64, error) {
	var accounts []model.Account
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Account{})
	if filter.Role != "" {
		db = db.Where("role = ?", filter.Role)
	}
	if filter.IsApproved != nil {
		db = db.Where("is_approved = ?", *filter.IsApproved)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("LOWER(email) LIKE LOWER(?) OR LOWER(full_name) LIKE LOWER(?)", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Preload("Permissions").Order("created_at desc").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *accountRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return GetDB(ctx, r.db).Model(&model.Account{}).Where("id = ?", id).Update("role", role).Error
}

// UpdateApproval writes the single column so a false value is not skipped.
func (r *accountRepository) UpdateApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	return GetDB(ctx, r.db).Model(&model.Account{}).Where("id = ?", id).Update("is_approved", approved).Error
}

func (r *accountRepository) ReplacePermissions(ctx context.Context, id uuid.UUID, rows []model.AccountPermission) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("account_id = ?", id).Delete(&model.AccountPermission{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Create(&rows).Error
}

func (r *accountRepository) DeletePermissions(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("account_id = ?", id).Delete(&model.AccountPermission{}).Error
}

func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("account_id = ?", id).Delete(&model.AccountPermission{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Account{}).Error
}
