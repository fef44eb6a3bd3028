package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

// Console prints events, quotes and the pool balance sheet for operators.
// It also works as an event sink that prints one line per event.
type Console struct {
	out            io.Writer
	amountDecimals int
	oddsDecimals   int
}

// NewConsole writes to stdout.
func NewConsole(amountDecimals, oddsDecimals int) *Console {
	return NewConsoleWriter(os.Stdout, amountDecimals, oddsDecimals)
}

// NewConsoleWriter writes to w; used by tests.
func NewConsoleWriter(w io.Writer, amountDecimals, oddsDecimals int) *Console {
	return &Console{out: w, amountDecimals: amountDecimals, oddsDecimals: oddsDecimals}
}

// Publish prints ev as a single line.
func (c *Console) Publish(_ context.Context, ev domain.Event) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-19s %s", ev.At.Format("15:04:05"), ev.Kind, shortAddr(ev.Account.Hex()))
	if ev.ConditionID != 0 {
		fmt.Fprintf(&sb, " cond=%d", ev.ConditionID)
	}
	if ev.BetID != 0 {
		fmt.Fprintf(&sb, " bet=%d", ev.BetID)
	}
	if ev.Outcome != 0 {
		fmt.Fprintf(&sb, " outcome=%d", ev.Outcome)
	}
	if !ev.Amount.IsZero() {
		fmt.Fprintf(&sb, " amount=%s", c.amount(&ev.Amount))
	}
	if !ev.Odds.IsZero() {
		fmt.Fprintf(&sb, " odds=%s", c.odds(&ev.Odds))
	}
	if !ev.Shares.IsZero() {
		fmt.Fprintf(&sb, " shares=%s", c.amount(&ev.Shares))
	}
	_, err := fmt.Fprintln(c.out, sb.String())
	return err
}

// PrintEvents prints a journal excerpt as a table.
func (c *Console) PrintEvents(events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(c.out, "No events found")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Kind", "Account", "Cond", "Bet", "Outcome", "Amount", "Odds", "Shares")
	for _, ev := range events {
		table.Append(
			ev.At.Format("2006-01-02 15:04:05"),
			string(ev.Kind),
			shortAddr(ev.Account.Hex()),
			idOrDash(ev.ConditionID),
			idOrDash(ev.BetID),
			idOrDash(ev.Outcome),
			c.amountOrDash(&ev.Amount),
			c.oddsOrDash(&ev.Odds),
			c.amountOrDash(&ev.Shares),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  %d events\n", len(events))
}

// PrintConditions lists conditions with their reserves and stakes.
func (c *Console) PrintConditions(conds []domain.Condition) {
	if len(conds) == 0 {
		fmt.Fprintln(c.out, "No conditions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "State", "Outcomes", "Reserves", "Stakes", "Deadline")
	for _, cd := range conds {
		state := cd.State.String()
		if cd.State == domain.ConditionResolved {
			state = fmt.Sprintf("%s (%d)", state, cd.WinningOutcome)
		}
		table.Append(
			fmt.Sprintf("%d", cd.ID),
			state,
			fmt.Sprintf("%d / %d", cd.Outcomes[0], cd.Outcomes[1]),
			fmt.Sprintf("%s / %s", c.amount(&cd.Reserves[0]), c.amount(&cd.Reserves[1])),
			fmt.Sprintf("%s / %s", c.amount(&cd.Stakes[0]), c.amount(&cd.Stakes[1])),
			cd.Deadline.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

// QuoteLine is the price of one outcome for a given stake, or why there is
// none.
type QuoteLine struct {
	Outcome uint64
	Odds    uint256.Int
	Err     error
}

// PrintQuote shows what a stake of amount would get on each line.
func (c *Console) PrintQuote(conditionID uint64, amount *uint256.Int, lines []QuoteLine) {
	fmt.Fprintf(c.out, "\nCondition %d, stake %s\n", conditionID, c.amount(amount))

	table := tablewriter.NewWriter(c.out)
	table.Header("Outcome", "Odds", "Payout", "Note")
	scale := pow10(c.oddsDecimals)
	for _, l := range lines {
		if l.Err != nil {
			table.Append(fmt.Sprintf("%d", l.Outcome), "-", "-", l.Err.Error())
			continue
		}
		payout := domain.Payout(amount, &l.Odds, scale)
		table.Append(fmt.Sprintf("%d", l.Outcome), c.odds(&l.Odds), c.amount(payout), "")
	}
	table.Render()
}

// PrintSnapshot prints the pool balance sheet.
func (c *Console) PrintSnapshot(s pool.Snapshot) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Liquidity", "Locked", "Free", "Escrow", "Payout reserve", "Shares", "Open", "Depositors")
	table.Append(
		c.amount(&s.Liquidity),
		c.amount(&s.Locked),
		c.amount(&s.Free),
		c.amount(&s.Escrow),
		c.amount(&s.PayoutReserve),
		c.amount(&s.TotalShares),
		fmt.Sprintf("%d", s.OpenConditions),
		fmt.Sprintf("%d", s.Depositors),
	)
	table.Render()
	fmt.Fprintf(c.out, "  held: %s\n", c.amount(s.Held()))
}

// --- formatting ---

func (c *Console) amount(v *uint256.Int) string { return domain.FormatFixed(v, c.amountDecimals) }
func (c *Console) odds(v *uint256.Int) string   { return domain.FormatFixed(v, c.oddsDecimals) }

func (c *Console) amountOrDash(v *uint256.Int) string {
	if v.IsZero() {
		return "-"
	}
	return c.amount(v)
}

func (c *Console) oddsOrDash(v *uint256.Int) string {
	if v.IsZero() {
		return "-"
	}
	return c.odds(v)
}

func idOrDash(id uint64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

// shortAddr keeps the first 6 and last 4 characters of a hex address.
func shortAddr(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:6] + ".." + hex[len(hex)-4:]
}

func pow10(n int) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}
