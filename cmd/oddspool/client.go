package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/oddspool/config"
	"github.com/alejandrodnm/oddspool/internal/adapters/apiclient"
	"github.com/alejandrodnm/oddspool/internal/adapters/notify"
	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

var (
	serverURL string
	account   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "oddspool server base URL")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "account to act as (hex address)")

	rootCmd.AddCommand(quoteCmd, betCmd, payoutCmd, depositCmd, poolCmd)

	betCmd.Flags().String("min-odds", "", "reject the bet below these odds (decimal, e.g. 1.85)")
	betCmd.Flags().Duration("within", 5*time.Minute, "reject the bet if it is not accepted within this time")
	betCmd.Flags().String("affiliate", "", "affiliate address recorded with the bet")

	payoutCmd.Flags().Bool("withdraw", false, "withdraw the payout instead of only showing it")
}

var quoteCmd = &cobra.Command{
	Use:   "quote CONDITION AMOUNT",
	Short: "Show the odds both outcomes would get for a stake",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuote,
}

var betCmd = &cobra.Command{
	Use:   "bet CONDITION OUTCOME AMOUNT",
	Short: "Place a bet",
	Args:  cobra.ExactArgs(3),
	RunE:  runBet,
}

var payoutCmd = &cobra.Command{
	Use:   "payout BET",
	Short: "Show, or withdraw, what a bet pays",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayout,
}

var depositCmd = &cobra.Command{
	Use:   "deposit AMOUNT",
	Short: "Add liquidity to the pool",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeposit,
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Print the pool balance sheet",
	Args:  cobra.NoArgs,
	RunE:  runPool,
}

// session bundles what every client command needs.
type session struct {
	cfg     *config.Config
	client  *apiclient.Client
	console *notify.Console
}

func newSession(needAccount bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var caller common.Address
	if account != "" {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("--account %q is not an address", account)
		}
		caller = common.HexToAddress(account)
	} else if needAccount {
		return nil, fmt.Errorf("--account is required")
	}
	return &session{
		cfg:     cfg,
		client:  apiclient.NewClient(serverURL, caller),
		console: notify.NewConsole(cfg.Pool.Decimals, cfg.Pool.Decimals),
	}, nil
}

func (s *session) amount(raw string) (*uint256.Int, error) {
	v, err := s.cfg.Amount(raw)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return v, nil
}

func (s *session) format(raw string) string {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return raw
	}
	return domain.FormatFixed(v, s.cfg.Pool.Decimals)
}

func runQuote(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	amount, err := s.amount(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cond, err := s.client.Condition(ctx, id)
	if err != nil {
		return err
	}
	lines := make([]notify.QuoteLine, 0, len(cond.Outcomes))
	for _, outcome := range cond.Outcomes {
		line := notify.QuoteLine{Outcome: outcome}
		q, err := s.client.Quote(ctx, id, amount.Dec(), outcome)
		if err != nil {
			line.Err = err
		} else if odds, err := uint256.FromDecimal(q.Odds); err != nil {
			line.Err = err
		} else {
			line.Odds = *odds
		}
		lines = append(lines, line)
	}
	s.console.PrintQuote(id, amount, lines)
	return nil
}

func runBet(cmd *cobra.Command, args []string) error {
	s, err := newSession(true)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	outcome, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("outcome: %w", err)
	}
	amount, err := s.amount(args[2])
	if err != nil {
		return err
	}

	params := apiclient.BetParams{
		ConditionID: id,
		Amount:      amount.Dec(),
		Outcome:     outcome,
	}
	within, _ := cmd.Flags().GetDuration("within")
	params.DeadlineLimit = time.Now().Add(within).UTC()
	if raw, _ := cmd.Flags().GetString("min-odds"); raw != "" {
		minOdds, err := s.cfg.Amount(raw)
		if err != nil {
			return fmt.Errorf("min-odds: %w", err)
		}
		params.MinOdds = minOdds.Dec()
	}
	if raw, _ := cmd.Flags().GetString("affiliate"); raw != "" {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("affiliate %q is not an address", raw)
		}
		params.Affiliate = common.HexToAddress(raw)
	}

	b, err := s.client.Bet(cmd.Context(), params)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "bet %d on condition %d outcome %d: stake %s at odds %s\n",
		b.ID, b.ConditionID, b.Outcome, s.format(b.Amount), s.format(b.Odds))
	return nil
}

func runPayout(cmd *cobra.Command, args []string) error {
	withdraw, _ := cmd.Flags().GetBool("withdraw")
	s, err := newSession(withdraw)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bet: %w", err)
	}

	var p apiclient.Payout
	if withdraw {
		p, err = s.client.WithdrawPayout(cmd.Context(), id)
	} else {
		p, err = s.client.ViewPayout(cmd.Context(), id)
	}
	if err != nil {
		return err
	}
	switch {
	case withdraw && p.Pending != "":
		fmt.Fprintf(os.Stdout, "bet %d: withdrew %s, transfer %s not yet confirmed\n", id, s.format(p.Amount), p.Pending)
	case withdraw:
		fmt.Fprintf(os.Stdout, "bet %d: withdrew %s\n", id, s.format(p.Amount))
	case p.Win:
		fmt.Fprintf(os.Stdout, "bet %d: pays %s\n", id, s.format(p.Amount))
	default:
		fmt.Fprintf(os.Stdout, "bet %d: nothing to pay yet\n", id)
	}
	return nil
}

func runDeposit(cmd *cobra.Command, args []string) error {
	s, err := newSession(true)
	if err != nil {
		return err
	}
	amount, err := s.amount(args[0])
	if err != nil {
		return err
	}
	shares, err := s.client.AddLiquidity(cmd.Context(), amount.Dec())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "deposited %s for %s shares\n", domain.FormatFixed(amount, s.cfg.Pool.Decimals), s.format(shares))
	return nil
}

func runPool(cmd *cobra.Command, _ []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	snap, err := s.client.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	out, err := toSnapshot(snap)
	if err != nil {
		return err
	}
	s.console.PrintSnapshot(out)
	return nil
}

func toSnapshot(in apiclient.Snapshot) (pool.Snapshot, error) {
	out := pool.Snapshot{OpenConditions: in.OpenConditions, Depositors: in.Depositors}
	for _, f := range []struct {
		raw string
		dst *uint256.Int
	}{
		{in.Liquidity, &out.Liquidity},
		{in.Locked, &out.Locked},
		{in.Free, &out.Free},
		{in.Escrow, &out.Escrow},
		{in.PayoutReserve, &out.PayoutReserve},
		{in.TotalShares, &out.TotalShares},
	} {
		if f.raw == "" {
			continue
		}
		if err := f.dst.SetFromDecimal(f.raw); err != nil {
			return pool.Snapshot{}, fmt.Errorf("snapshot: %w", err)
		}
	}
	return out, nil
}
