package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rangeKeeper/internal/automation"
	"rangeKeeper/internal/chain"
	"rangeKeeper/internal/chainpool"
	"rangeKeeper/internal/config"
	"rangeKeeper/internal/keeper"
	"rangeKeeper/internal/lifecycle"
	"rangeKeeper/internal/oracle"
	"rangeKeeper/internal/pool"
	"rangeKeeper/internal/pool/mempool"
	"rangeKeeper/internal/storage"
	"rangeKeeper/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "keeper",
		Short:        "Automated liquidity position keeper",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keeper loop",
		RunE:  runKeeper,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN (empty uses the file store)")
	runCmd.Flags().String("state-file", "./data/state.json", "state file path")
	runCmd.Flags().String("audit-file", "./data/actions.jsonl", "action audit JSONL path")
	runCmd.Flags().String("requests-file", "./data/requests.json", "signed requests file")
	runCmd.Flags().String("pool", "", "pool contract address to mirror")
	runCmd.Flags().String("oracle", "", "price oracle contract address")
	runCmd.Flags().String("domain-name", "RangeKeeper", "signing domain name")
	runCmd.Flags().String("domain-version", "1", "signing domain version")
	runCmd.Flags().Uint64("guard-bps", 1000, "price manipulation guard threshold in bps")
	runCmd.Flags().Duration("poll-interval", 15*time.Second, "trigger polling interval")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Bool("once", false, "perform a single sweep and exit")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the optimal deposit split for a range",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("rpc", "", "RPC URL (with --pool, reads the live price)")
	quoteCmd.Flags().String("pool", "", "pool contract address")
	quoteCmd.Flags().String("sqrt-price", "", "current sqrtPriceX96 (overrides --rpc)")
	quoteCmd.Flags().Int32("tick-lower", 0, "lower tick of the range")
	quoteCmd.Flags().Int32("tick-upper", 0, "upper tick of the range")
	quoteCmd.Flags().String("amount0", "0", "token0 amount to deposit")
	quoteCmd.Flags().String("amount1", "0", "token1 amount to deposit")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var state storage.StateStore
	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		state = pgStore
	} else {
		fileStore, err := storage.NewFileStore(cfg.StateFile, cfg.AuditFile)
		if err != nil {
			return fmt.Errorf("open state file: %w", err)
		}
		state = fileStore
	}

	backend := mempool.New()
	source := oracle.PriceSource(oracle.NewStatic())

	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		chainID, err := chainClient.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("read chain id: %w", err)
		}
		head, err := chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("read block number: %w", err)
		}
		logger.Info("chain connected",
			zap.String("chain_id", chainID.String()),
			zap.Uint64("head", head))

		if cfg.PoolAddress != "" {
			reader := chainpool.NewReader(chainClient)
			ref, err := reader.FetchRef(ctx, common.HexToAddress(cfg.PoolAddress))
			if err != nil {
				return fmt.Errorf("fetch pool: %w", err)
			}
			sqrtPrice, _, err := reader.Slot0(ctx, ref)
			if err != nil {
				return fmt.Errorf("read slot0: %w", err)
			}
			if err := backend.CreatePool(ref, sqrtPrice); err != nil {
				return fmt.Errorf("mirror pool: %w", err)
			}
			logger.Info("mirrored pool",
				zap.String("address", cfg.PoolAddress),
				zap.String("sqrt_price_x96", sqrtPrice.String()))
		}
		if cfg.OracleAddress != "" {
			source = oracle.NewChainSource(chainClient, common.HexToAddress(cfg.OracleAddress))
		}
	}

	registry := lifecycle.NewMemRegistry()
	manager := lifecycle.New(backend, registry, nil, logger)
	engine := automation.NewEngine(manager, source, state, automation.Config{
		Name:     cfg.DomainName,
		Version:  cfg.DomainVersion,
		GuardBps: uint32(cfg.GuardBps),
	}, logger)

	runner := keeper.NewRunner(keeper.RunConfig{
		RequestsPath: cfg.RequestsFile,
		PollInterval: cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Once:         cfg.Once,
	}, engine, logger)

	logger.Info("keeper start",
		zap.String("requests", cfg.RequestsFile),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Uint64("guard_bps", cfg.GuardBps),
		zap.Bool("once", cfg.Once),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	if pgStore != nil {
		if err := snapshotPositions(context.Background(), pgStore, registry); err != nil {
			logger.Warn("position snapshot failed", zap.Error(err))
		}
	}
	return nil
}

// snapshotPositions persists the registry's final state on shutdown.
func snapshotPositions(ctx context.Context, store *postgres.Store, registry *lifecycle.MemRegistry) error {
	ids := registry.IDs()
	positions := make([]*pool.Position, 0, len(ids))
	for _, id := range ids {
		position, err := registry.Get(ctx, id)
		if err != nil {
			return err
		}
		positions = append(positions, &position)
	}
	return store.UpsertPositions(ctx, positions)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
