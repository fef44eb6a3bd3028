package access

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

// Roles is a role table seeded from configuration. Admins can grant and
// revoke roles at runtime. It implements ports.Authorizer.
type Roles struct {
	mu      sync.RWMutex
	members map[domain.Role]map[common.Address]struct{}
}

// NewRoles seeds the table. A nil or empty list leaves the role empty.
func NewRoles(seed map[domain.Role][]common.Address) *Roles {
	r := &Roles{members: make(map[domain.Role]map[common.Address]struct{})}
	for role, accounts := range seed {
		for _, a := range accounts {
			r.add(role, a)
		}
	}
	return r
}

func (r *Roles) HasRole(role domain.Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][account]
	return ok
}

// Grant gives account the role. caller must be an admin.
func (r *Roles) Grant(caller common.Address, role domain.Role, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[domain.RoleAdmin][caller]; !ok {
		return domain.ErrNotAdmin
	}
	r.add(role, account)
	return nil
}

// Revoke removes the role from account. caller must be an admin.
func (r *Roles) Revoke(caller common.Address, role domain.Role, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[domain.RoleAdmin][caller]; !ok {
		return domain.ErrNotAdmin
	}
	delete(r.members[role], account)
	return nil
}

// Members lists the holders of role in address order.
func (r *Roles) Members(role domain.Role) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.members[role]))
	for a := range r.members[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (r *Roles) add(role domain.Role, account common.Address) {
	if r.members[role] == nil {
		r.members[role] = make(map[common.Address]struct{})
	}
	r.members[role][account] = struct{}{}
}
