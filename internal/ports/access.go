package ports

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

// Authorizer answers capability checks for privileged callers.
type Authorizer interface {
	HasRole(role domain.Role, account common.Address) bool
}
