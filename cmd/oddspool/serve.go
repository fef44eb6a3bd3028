package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/oddspool/config"
	"github.com/alejandrodnm/oddspool/internal/adapters/access"
	"github.com/alejandrodnm/oddspool/internal/adapters/asset"
	"github.com/alejandrodnm/oddspool/internal/adapters/httpapi"
	"github.com/alejandrodnm/oddspool/internal/adapters/metrics"
	"github.com/alejandrodnm/oddspool/internal/adapters/notify"
	"github.com/alejandrodnm/oddspool/internal/adapters/onchain"
	"github.com/alejandrodnm/oddspool/internal/adapters/receipt"
	"github.com/alejandrodnm/oddspool/internal/adapters/storage"
	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool behind the HTTP API",
	Long: `Start the pool with the settlement asset, role table and event journal
described by the config file. Without chain.rpc_url the pool settles on an
in-memory token funded from chain.faucet, which is meant for development.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		return err
	}
	seed, err := cfg.RoleSeed()
	if err != nil {
		return err
	}
	roles := access.NewRoles(seed)

	settlement, account, closeSettlement, err := openSettlement(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSettlement()
	if cfg.OnChain() {
		poolCfg.Account = account
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open journal %q: %w", cfg.Storage.DSN, err)
	}
	defer journal.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	decimals := cfg.Pool.Decimals
	collector := metrics.NewCollector(reg, decimals, decimals)

	receipts := receipt.NewRegistry()
	sink := notify.Multi{journal, collector, notify.NewLogSink(slog.Default())}
	p := pool.New(poolCfg, settlement, receipts, roles, nil, sink)
	metrics.RegisterPool(reg, p, decimals)

	api := httpapi.NewServer(httpapi.Options{
		Pool:              p,
		Receipts:          receipts,
		Roles:             roles,
		Journal:           journal,
		Gatherer:          reg,
		Logger:            slog.Default(),
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		RequestTimeout:    cfg.Server.RequestTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Storage.Retention > 0 {
		go pruneLoop(ctx, journal, cfg.Storage.Retention)
	}
	if cfg.OnChain() {
		go reconcileLoop(ctx, p, cfg.Chain.ReconcileInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("oddspool serving",
			"listen", cfg.Server.Listen,
			"pool", poolCfg.Account.Hex(),
			"on_chain", cfg.OnChain(),
			"journal", cfg.Storage.DSN,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("oddspool stopped cleanly")
	return nil
}

// openSettlement returns the asset the pool settles in, on chain the signing
// account that acts as the pool account, and a func releasing the asset's
// connection.
func openSettlement(ctx context.Context, cfg *config.Config) (ports.SettlementAsset, common.Address, func(), error) {
	if !cfg.OnChain() {
		balances, err := cfg.FaucetBalances()
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		token := asset.NewToken("ODDS")
		for account, amount := range balances {
			token.Mint(account, amount)
		}
		slog.Info("settling on in-memory token", "funded_accounts", len(balances))
		return token, common.Address{}, func() {}, nil
	}

	if !common.IsHexAddress(cfg.Chain.Token) {
		return nil, common.Address{}, nil, fmt.Errorf("chain.token %q is not an address", cfg.Chain.Token)
	}
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, common.Address{}, nil, fmt.Errorf("dial %s: %w", cfg.Chain.RPCURL, err)
	}
	erc20, err := onchain.NewERC20Asset(client, onchain.Config{
		ChainID:        cfg.Chain.ChainID,
		Token:          common.HexToAddress(cfg.Chain.Token),
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	}, cfg.Chain.PrivateKey)
	if err != nil {
		client.Close()
		return nil, common.Address{}, nil, err
	}
	slog.Info("settling on chain", "token", cfg.Chain.Token, "chain_id", cfg.Chain.ChainID, "pool", erc20.Address().Hex())
	return erc20, erc20.Address(), client.Close, nil
}

// reconcileLoop settles transfers the chain left unconfirmed.
func reconcileLoop(ctx context.Context, p *pool.Pool, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := p.ReconcileTransfers(ctx)
		if err != nil {
			slog.Warn("transfer reconcile failed", "err", err)
		}
		if n > 0 {
			slog.Info("pending transfers closed", "count", n, "still_pending", len(p.PendingTransfers()))
		}
	}
}

// pruneLoop drops journal events older than retention once an hour.
func pruneLoop(ctx context.Context, journal *storage.SQLiteJournal, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := journal.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Warn("journal prune failed", "err", err)
		} else if n > 0 {
			slog.Info("journal pruned", "events", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
