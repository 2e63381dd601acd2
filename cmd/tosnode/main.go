package main

// main.go is the tosnode daemon's command surface: a thin cobra wrapper that
// loads configuration and wires the core engines together. Grounded on the
// teacher's cmd/synnergy/main.go rootCmd/AddCommand shape; the node/RPC/P2P
// adapter layer itself is out of scope (§1 "CLI surface... is a thin
// adapter") so each subcommand here only constructs and reports on the core
// components rather than serving traffic.

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tos-network/tos-sub001/core"
	"github.com/tos-network/tos-sub001/pkg/config"
)

// newLogger builds a logrus logger at the configured level, falling back to
// Info on an unrecognised level string rather than failing startup over it.
func newLogger(level string) *logrus.Logger {
	lg := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	lg.SetLevel(lvl)
	return lg
}

func main() {
	rootCmd := &cobra.Command{Use: "tosnode"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(configCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "initialize the node's core engines from configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			env, _ := cmd.Flags().GetString("env")
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			if err := bootCore(cfg); err != nil {
				return err
			}
			fmt.Printf("tosnode core engines initialized for network %q (chain_id=%d)\n",
				cfg.Network.ID, cfg.Network.ChainID)
			return nil
		},
	}
	cmd.Flags().String("env", "", "environment overlay to merge onto the default config")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config"}
	show := &cobra.Command{
		Use:   "show",
		Short: "print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			env, _ := cmd.Flags().GetString("env")
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", cfg)
			return nil
		},
	}
	show.Flags().String("env", "", "environment overlay to merge onto the default config")
	cmd.AddCommand(show)
	return cmd
}

// nodeCore bundles every engine a running node drives together; returned so
// a future RPC/P2P adapter has a single handle to wire against.
type nodeCore struct {
	state     *core.ChainState
	dag       *core.DAG
	mempool   *core.Mempool
	scheduler *core.Scheduler
	storage   *core.Storage
}

// bootCore constructs the core engines from a resolved Config, mirroring the
// teacher's testnetCmd "start" action of standing up in-memory components
// rather than dialing real peers.
func bootCore(cfg *config.Config) error {
	lg := newLogger(cfg.Logging.Level)

	storage, err := core.NewStorage(lg)
	if err != nil {
		return err
	}

	state := core.NewChainState(lg, cfg.Network.ChainID, core.ChainStateConfig{
		CoinValue:             cfg.Chain.CoinValue,
		FeePerAccountCreation: cfg.Chain.FeePerAccountCreation,
		MaxTransferCount:      cfg.Chain.MaxTransferCount,
		MaxGasUsagePerTx:      cfg.Chain.MaxGasUsagePerTx,
		BlocksPerDay:          144,
		Freeze3DayMultiplier:  cfg.Energy.Freeze3DayMultiplier,
		Freeze7DayMultiplier:  cfg.Energy.Freeze7DayMultiplier,
		Freeze14DayMultiplier: cfg.Energy.Freeze14DayMultiplier,
	})

	dag := core.NewDAG(cfg.Chain.PruneSafetyLimit)
	dag.SetStorage(storage)
	state.SetStorage(storage)
	state.SetReferenceSource(dag)

	scheduler := core.NewScheduler(core.SchedulerConfig{
		MaxSchedulingHorizon:             cfg.Scheduler.MaxSchedulingHorizon,
		MaxScheduledExecutionsPerBlock:   cfg.Scheduler.MaxScheduledExecutionsPerBlock,
		MaxScheduledExecutionGasPerBlock: cfg.Scheduler.MaxScheduledExecutionGasPerBlock,
		MinimumCancellationWindow:        cfg.Scheduler.MinimumCancellationWindow,
	})

	mempool := core.NewMempool(4096)

	_ = &nodeCore{state: state, dag: dag, mempool: mempool, scheduler: scheduler, storage: storage}
	return nil
}
