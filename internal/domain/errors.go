package domain

import "errors"

// Category groups rejections by the kind of rule they enforce.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryTiming        Category = "timing"
	CategoryValidation    Category = "validation"
	CategoryPricing       Category = "pricing"
	CategoryLiquidity     Category = "liquidity"
	CategorySettlement    Category = "settlement"
)

// Error is a well-defined rejection of one call. State is never modified
// when an operation returns an *Error.
type Error struct {
	Category Category
	Msg      string
}

func (e *Error) Error() string { return e.Msg }

func newError(c Category, msg string) *Error { return &Error{Category: c, Msg: msg} }

// CategoryOf returns the category of the first *Error in err's chain, or ""
// if err carries none.
func CategoryOf(err error) Category {
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// Authorization
var (
	ErrNotOracle     = newError(CategoryAuthorization, "caller is not an oracle")
	ErrNotMaintainer = newError(CategoryAuthorization, "caller is not a maintainer")
	ErrNotAdmin      = newError(CategoryAuthorization, "caller is not an admin")
)

// Timing
var (
	ErrDeadlineInvalid     = newError(CategoryTiming, "deadline must be set and in the future")
	ErrConditionExpired    = newError(CategoryTiming, "condition deadline has passed")
	ErrBetDeadlineExceeded = newError(CategoryTiming, "bet deadline limit exceeded")
	ErrConditionNotEnded   = newError(CategoryTiming, "condition deadline not reached")
	ErrNoMaturedRequest    = newError(CategoryTiming, "no matured withdrawal request covers the amount")
)

// Validation
var (
	ErrConditionExists   = newError(CategoryValidation, "condition id already used")
	ErrConditionNotFound = newError(CategoryValidation, "condition not found")
	ErrConditionClosed   = newError(CategoryValidation, "condition already resolved or canceled")
	ErrInvalidOutcome    = newError(CategoryValidation, "outcome not in condition")
	ErrInvalidOutcomes   = newError(CategoryValidation, "condition outcomes must be non-zero and differ")
	ErrInvalidWeights    = newError(CategoryValidation, "reserve weights must both be positive")
	ErrBetTooSmall       = newError(CategoryValidation, "bet amount below minimum")
	ErrBetNotFound       = newError(CategoryValidation, "bet not found")
	ErrZeroAmount        = newError(CategoryValidation, "amount must be positive")
	ErrDepositTooSmall   = newError(CategoryValidation, "deposit too small to mint shares")
	ErrStalePlan         = newError(CategoryValidation, "bet plan is stale")
	ErrUnknownRole       = newError(CategoryValidation, "unknown role")
)

// Pricing
var (
	ErrOddsBelowMinimum = newError(CategoryPricing, "odds below requested minimum")
	ErrOddsBelowFloor   = newError(CategoryPricing, "odds below break-even")
	ErrBetTooLarge      = newError(CategoryPricing, "bet too large relative to pool")
	ErrPricingDomain    = newError(CategoryPricing, "reserves or stake outside pricing range")
)

// Liquidity
var (
	ErrReserveUnavailable    = newError(CategoryLiquidity, "not enough free liquidity to reinforce condition")
	ErrPayoutNotCovered      = newError(CategoryLiquidity, "potential payout exceeds condition reserves")
	ErrInsufficientLiquidity = newError(CategoryLiquidity, "withdrawal exceeds free liquidity")
	ErrRequestExceedsShares  = newError(CategoryLiquidity, "request exceeds free share balance")
	ErrInsufficientShares    = newError(CategoryLiquidity, "share balance too low")
)

// Settlement
var (
	ErrNotReceiptOwner = newError(CategorySettlement, "caller does not own the receipt")
	ErrAlreadySettled  = newError(CategorySettlement, "payout already withdrawn")
	ErrNotDecided      = newError(CategorySettlement, "condition not yet decided")
	ErrNoWinNoPrize    = newError(CategorySettlement, "no win no prize")
	ErrReceiptNotFound = newError(CategorySettlement, "receipt not found")
	ErrReceiptExists   = newError(CategorySettlement, "receipt already minted")

	ErrTransferUnconfirmed = newError(CategorySettlement, "transfer into the pool not confirmed")
)
