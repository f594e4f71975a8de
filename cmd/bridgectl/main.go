// Package main is the operator CLI for the bridge ledger and price feeds.
//
//	bridgectl prices
//	bridgectl quote --amount 1.5 --chain 137
//	bridgectl pending
//	bridgectl show 42
//	bridgectl fulfill 42 --mega-tx 0x...
//	bridgectl reject 42
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"megabridge/internal/app"
	"megabridge/internal/config"
	"megabridge/internal/domain"
	"megabridge/internal/logging"
	"megabridge/internal/quote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type cli struct {
	v          *viper.Viper
	out        io.Writer
	configFile string
	envFile    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: config.New(), out: out}

	root := &cobra.Command{
		Use:          "bridgectl",
		Short:        "Inspect prices and manage pending bridge transactions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(c.envFile); err != nil {
				return err
			}
			return config.ReadFile(c.v, c.configFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (yaml, json, toml)")
	flags.StringVar(&c.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flags.String("postgres-dsn", "", "PostgreSQL connection string for the ledger")
	flags.Bool("use-memory", false, "Use an in-memory ledger (useful for prices and quotes only)")
	flags.String("log-level", "error", "Log level")
	_ = c.v.BindPFlag(config.KeyPostgresDSN, flags.Lookup("postgres-dsn"))
	_ = c.v.BindPFlag(config.KeyUseMemory, flags.Lookup("use-memory"))
	_ = c.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(
		c.pricesCmd(),
		c.quoteCmd(),
		c.pendingCmd(),
		c.showCmd(),
		c.fulfillCmd(),
		c.rejectCmd(),
	)
	return root
}

// withApp builds the shared core for one command and releases it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger.Named("bridgectl"), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Fetch and print the merged price table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				e, err := a.Cache.Get(cmd.Context())
				if err != nil {
					return fmt.Errorf("fetch prices: %w", err)
				}
				if e.Degraded {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: no live source answered (%s)\n", e.Outcome)
				}
				return c.print(e.Table)
			})
		},
	}
}

func (c *cli) quoteCmd() *cobra.Command {
	var amount, chain, input, output string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a bridge quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key domain.ChainKey
			if chain != "" {
				var ok bool
				if key, ok = domain.ParseChainKey(chain); !ok {
					return fmt.Errorf("invalid chain %q", chain)
				}
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				q, err := a.Quotes.Quote(cmd.Context(), quote.Request{
					Amount:      amount,
					ChainID:     key,
					InputToken:  input,
					OutputToken: output,
				})
				if err != nil {
					return err
				}
				return c.print(q)
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Input amount (required)")
	cmd.Flags().StringVar(&chain, "chain", "", "Source chain id or \"solana\" (default Base)")
	cmd.Flags().StringVar(&input, "input", "", "Input token symbol, overrides the chain's token")
	cmd.Flags().StringVar(&output, "output", "", "Output token symbol (default ETH)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *cli) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending bridge transactions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				txs, err := a.Bridge.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				if txs == nil {
					txs = []*domain.BridgeTransaction{}
				}
				return c.print(txs)
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one bridge transaction in any status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				tx, err := a.Bridge.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("show %d: %w", id, err)
				}
				return c.print(tx)
			})
		},
	}
}

func (c *cli) fulfillCmd() *cobra.Command {
	var megaTx string
	cmd := &cobra.Command{
		Use:   "fulfill <id>",
		Short: "Mark a pending transaction completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				tx, err := a.Bridge.Fulfill(cmd.Context(), id, megaTx)
				if err != nil {
					return fmt.Errorf("fulfill %d: %w", id, err)
				}
				return c.print(tx)
			})
		},
	}
	cmd.Flags().StringVar(&megaTx, "mega-tx", "", "MegaETH transaction hash of the payout")
	return cmd
}

func (c *cli) rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Mark a pending transaction rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				tx, err := a.Bridge.Reject(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("reject %d: %w", id, err)
				}
				return c.print(tx)
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", raw)
	}
	return id, nil
}
