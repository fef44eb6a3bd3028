package pool

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oddspool/internal/adapters/asset"
	"github.com/alejandrodnm/oddspool/internal/adapters/receipt"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

func newBarePool(t *testing.T, now *time.Time) (*Pool, *asset.Token) {
	t.Helper()
	token := asset.NewToken("USDC")
	cfg := DefaultConfig()
	cfg.Account = common.HexToAddress("0x0000000000000000000000000000000000000900")
	clock := ports.ClockFunc(func() time.Time { return *now })
	return New(cfg, token, receipt.NewRegistry(), nil, clock, nil), token
}

func TestRequests_FailedCallsLeaveNoEntry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	p, _ := newBarePool(t, &now)

	for i := 0; i < 50; i++ {
		stranger := common.BytesToAddress([]byte{0xf0, byte(i)})
		_, err := p.WithdrawLiquidity(ctx, stranger, uint256.NewInt(1))
		assert.ErrorIs(t, err, domain.ErrNoMaturedRequest)
		_, err = p.RequestLiquidity(ctx, stranger, uint256.NewInt(1))
		assert.ErrorIs(t, err, domain.ErrRequestExceedsShares)
	}
	assert.Empty(t, p.requests)
}

func TestRequests_LapsedEntryRemovedOnNextRead(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	p, token := newBarePool(t, &now)

	who := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	token.Mint(who, uint256.NewInt(1_000))
	_, err := p.AddLiquidity(ctx, who, uint256.NewInt(1_000))
	require.NoError(t, err)
	_, err = p.RequestLiquidity(ctx, who, uint256.NewInt(400))
	require.NoError(t, err)
	require.Len(t, p.requests, 1)

	now = now.Add(p.cfg.MaturityWindow + p.cfg.ValidityWindow)
	_, err = p.WithdrawLiquidity(ctx, who, uint256.NewInt(400))
	assert.ErrorIs(t, err, domain.ErrNoMaturedRequest)
	assert.NotContains(t, p.requests, who)
}
