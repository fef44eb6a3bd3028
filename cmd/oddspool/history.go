package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/oddspool/internal/adapters/notify"
	"github.com/alejandrodnm/oddspool/internal/adapters/storage"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("kind", "", "only events of this kind (e.g. bet_placed)")
	historyCmd.Flags().Uint64("condition", 0, "only events of this condition")
	historyCmd.Flags().Duration("since", 0, "only events newer than this (e.g. 24h)")
	historyCmd.Flags().Int("limit", 50, "maximum number of events")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print events from the journal",
	Long:  `Read the SQLite event journal named by storage.dsn directly, oldest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kind, _ := cmd.Flags().GetString("kind")
	condition, _ := cmd.Flags().GetUint64("condition")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	f := ports.EventFilter{
		Kind:        domain.EventKind(kind),
		ConditionID: condition,
		Limit:       limit,
	}
	if since > 0 {
		f.From = time.Now().Add(-since)
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open journal %q: %w", cfg.Storage.DSN, err)
	}
	defer journal.Close()

	events, err := journal.List(cmd.Context(), f)
	if err != nil {
		return err
	}
	notify.NewConsole(cfg.Pool.Decimals, cfg.Pool.Decimals).PrintEvents(events)
	return nil
}
