package memory

import (
	"context"
	"lc_escrow/internal/domain"
	"strings"
	"sync"
)

type RoleRepository struct {
	mu    sync.RWMutex
	roles map[string]domain.RoleSet
}

func NewRoleRepository() *RoleRepository {
	return &RoleRepository{
		roles: make(map[string]domain.RoleSet),
	}
}

func (r *RoleRepository) Get(ctx context.Context, account string) (domain.RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.roles[accountKey(account)], nil
}

func (r *RoleRepository) Add(ctx context.Context, account string, role domain.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := accountKey(account)
	current := r.roles[key]
	if current.Has(role) {
		return false, nil
	}
	r.roles[key] = current.With(role)

	return true, nil
}

// Account addresses compare case-insensitively.
func accountKey(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
