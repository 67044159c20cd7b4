package service

import (
	"sort"

	"backoffice/internal/model"
	"backoffice/pkg/metrics"
)

const (
	ReasonStaffRequired   = "admin or staff access required"
	ReasonPendingApproval = "account pending approval"
	ReasonNoAccess        = "no access"
	ReasonReadOnly        = "read-only access, edit permission required"
)

// Decision is the outcome of a permission evaluation. Reason is set on deny.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluator decides module access from already loaded account state. It has
// no dependencies and never touches the database.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate applies the role ladder and, for staff, the module matrix.
func (e *Evaluator) Evaluate(account *model.Account, module model.Module, required model.PermissionLevel) Decision {
	d := e.evaluate(account, module, required)
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	metrics.AuthDecisions.WithLabelValues(string(module), outcome).Inc()
	return d
}

func (e *Evaluator) evaluate(account *model.Account, module model.Module, required model.PermissionLevel) Decision {
	switch account.Role {
	case model.RoleAdmin:
		return allow()
	case model.RoleStaff:
	default:
		return deny(ReasonStaffRequired)
	}

	if !account.IsApproved {
		return deny(ReasonPendingApproval)
	}

	level := account.EffectivePermissions().Level(module)
	if level.Satisfies(required) {
		return allow()
	}
	if level == model.LevelNone {
		return deny(ReasonNoAccess)
	}
	return deny(ReasonReadOnly)
}

// Authorize is Evaluate as an error: nil, ErrUnauthenticated or *DeniedError.
func (e *Evaluator) Authorize(account *model.Account, module model.Module, required model.PermissionLevel) error {
	if account == nil {
		return ErrUnauthenticated
	}
	d := e.Evaluate(account, module, required)
	if d.Allowed {
		return nil
	}
	return &DeniedError{Module: string(module), Reason: d.Reason}
}

// RequireAdmin guards account administration, which is outside the module matrix.
func (e *Evaluator) RequireAdmin(account *model.Account) error {
	if account == nil {
		return ErrUnauthenticated
	}
	if account.Role != model.RoleAdmin {
		return &DeniedError{Reason: "admin access required"}
	}
	return nil
}

// ValidatePermissionMatrix parses a submitted module -> level payload. Unknown
// modules, unknown levels and users:edit are rejected.
func ValidatePermissionMatrix(raw map[string]string) (model.PermissionMatrix, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matrix := make(model.PermissionMatrix, len(raw))
	for _, key := range keys {
		module := model.Module(key)
		if !module.Valid() {
			return nil, validation("permissions", "unknown module %q", key)
		}
		level, err := model.ParsePermissionLevel(raw[key])
		if err != nil {
			return nil, validation("permissions."+key, "%s", err.Error())
		}
		if module == model.ModuleUsers && level == model.LevelEdit {
			return nil, validation("permissions.users", "staff accounts cannot be granted edit on users")
		}
		matrix[module] = level
	}
	return matrix, nil
}
