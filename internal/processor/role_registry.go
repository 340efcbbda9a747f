package processor

import (
	"context"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"lc_escrow/pkg/validator"
	"log/slog"
)

// RoleRegistry is the authority every other component consults before a
// privileged call. Roles can be granted but never revoked.
type RoleRegistry struct {
	repo   repository.RoleRepository
	exec   *Executor
	logger *slog.Logger
}

// NewRoleRegistry creates a registry in which admin holds ADMIN.
func NewRoleRegistry(ctx context.Context, repo repository.RoleRepository, exec *Executor, admin string, logger *slog.Logger) (*RoleRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := validator.ValidateAccount(admin); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if _, err := repo.Add(ctx, admin, domain.RoleAdmin); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	return &RoleRegistry{repo: repo, exec: exec, logger: logger}, nil
}

// GrantRole adds role to account. Granting a role the account already holds
// succeeds without any effect.
func (r *RoleRegistry) GrantRole(ctx context.Context, caller, account string, role domain.Role) error {
	const op = "grantRole"

	return r.exec.Execute(ctx, op, func(step *Step) error {
		if !r.HasRole(ctx, caller, domain.RoleAdmin) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleAdmin.String())
		}
		if !role.Valid() {
			return domain.Reject(op, domain.ErrInvalidInput, "role", role.String(), "")
		}
		if err := validator.ValidateAccount(account); err != nil {
			return domain.Reject(op, domain.ErrInvalidInput, "account", account, "")
		}

		added, err := r.repo.Add(ctx, account, role)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !added {
			return nil
		}

		step.Emit(domain.NewEvent(domain.EventRoleGranted, r.exec.Now()).
			With("account", account).
			With("role", role.String()).
			With("granted_by", caller))
		step.AfterCommit(func() {
			r.logger.InfoContext(ctx, "Role granted",
				slog.String("account", account),
				slog.String("role", role.String()))
		})
		return nil
	})
}

// HasRole never fails; lookup errors count as not holding the role.
func (r *RoleRegistry) HasRole(ctx context.Context, account string, role domain.Role) bool {
	return r.Roles(ctx, account).Has(role)
}

func (r *RoleRegistry) Roles(ctx context.Context, account string) domain.RoleSet {
	roles, err := r.repo.Get(ctx, account)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read roles",
			slog.String("account", account),
			slog.String("error", err.Error()))
		return 0
	}
	return roles
}
