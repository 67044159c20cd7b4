package service

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
)

// Actor identifies who performed a write. The zero value is the system.
type Actor struct {
	AccountID *uuid.UUID
	Email     string
}

// ActorFrom snapshots the acting account; nil yields the system actor.
func ActorFrom(account *model.Account) Actor {
	if account == nil {
		return Actor{}
	}
	id := account.ID
	return Actor{AccountID: &id, Email: account.Email}
}

// Name is the label stored in adjusted_by / changed_by columns.
func (a Actor) Name() string {
	if a.Email != "" {
		return a.Email
	}
	if a.AccountID != nil {
		return a.AccountID.String()
	}
	return "system"
}

func (a Actor) is(id uuid.UUID) bool {
	return a.AccountID != nil && *a.AccountID == id
}

// writeAudit appends an audit row on the transaction carried by ctx.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actor Actor, action, entityID, entityName string, details interface{}) error {
	payload := "{}"
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		payload = string(raw)
	}
	entry := &model.AuditLog{
		ActorID:    actor.AccountID,
		ActorEmail: actor.Email,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

type AuditService interface {
	List(ctx context.Context, filter repository.AuditFilter, page pagination.Params) ([]model.AuditLog, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) List(ctx context.Context, filter repository.AuditFilter, page pagination.Params) ([]model.AuditLog, int64, error) {
	return s.repo.List(ctx, filter, page.Offset, page.Limit)
}
