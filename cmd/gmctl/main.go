// Command gmctl runs engine actions from TOML scenario files and follows
// the action stream of a running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/config"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/events"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/graph"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/model"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "gmctl",
		Short:        "Run market engine scenarios",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Config{LogLevel: logLevel}
			handler := slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd(), newRouteCmd(), newWatchCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var strict, fees bool
	cmd := &cobra.Command{
		Use:   "run <scenario.toml>",
		Short: "Execute the steps of a scenario and print each outcome as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := LoadScenario(args[0])
			if err != nil {
				return err
			}
			r, err := NewRunner(sc, slog.Default())
			if err != nil {
				return err
			}
			return runScenario(cmd.Context(), cmd.OutOrStdout(), r, sc, strict, fees)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "stop at the first step that is not executed")
	cmd.Flags().BoolVar(&fees, "fees", false, "print the claimable fees of every market after the run")
	return cmd
}

func runScenario(ctx context.Context, w io.Writer, r *Runner, sc *Scenario, strict, fees bool) error {
	enc := json.NewEncoder(w)
	err := r.Run(ctx, sc.Steps, strict, func(i int, o *simulator.Outcome) error {
		return enc.Encode(struct {
			Step int `json:"step"`
			*simulator.Outcome
		}{i, o})
	})
	if err != nil {
		return err
	}
	if !fees {
		return nil
	}
	summary, err := r.Fees()
	if err != nil {
		return err
	}
	return enc.Encode(map[string]any{"fees": summary})
}

func newRouteCmd() *cobra.Command {
	var from, to, value string
	cmd := &cobra.Command{
		Use:   "route <scenario.toml>",
		Short: "Run a scenario, then print the best swap route between two tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := LoadScenario(args[0])
			if err != nil {
				return err
			}
			r, err := NewRunner(sc, slog.Default())
			if err != nil {
				return err
			}
			if err := r.Run(cmd.Context(), sc.Steps, false, func(int, *simulator.Outcome) error { return nil }); err != nil {
				return err
			}
			route, err := bestRoute(cmd.Context(), r, from, to, value)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(route)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "token to swap from")
	cmd.Flags().StringVar(&to, "to", "", "token to swap to")
	cmd.Flags().StringVar(&value, "value", "1000", "USD value used to estimate each market")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func bestRoute(ctx context.Context, r *Runner, from, to, value string) (graph.Route, error) {
	var decimals uint8 = config.DefaultDecimals
	if markets := r.Simulator().Markets(); len(markets) > 0 {
		decimals = markets[0].Decimals
	}
	est, err := parseValue(value, decimals)
	if err != nil {
		return graph.Route{}, err
	}
	router, err := graph.NewRouter(r.Simulator(), graph.Options{EstimationValue: est, Decimals: decimals}, slog.Default())
	if err != nil {
		return graph.Route{}, err
	}
	return router.BestRoute(ctx, from, to)
}

func parseValue(s string, decimals uint8) (num.Uint, error) {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return num.Zero, fmt.Errorf("%w: value %q", model.ErrInvalidArgument, s)
	}
	return num.UintFromScaled(d, decimals)
}

func newWatchCmd() *cobra.Command {
	var url, prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print action records published by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				url = os.Getenv("NATS_URL")
			}
			if url == "" {
				return fmt.Errorf("%w: --nats-url or NATS_URL is required", model.ErrInvalidArgument)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			records := make(chan model.ActionRecord, 64)
			sub, err := events.Subscribe(url, prefix, func(_ string, rec model.ActionRecord) {
				select {
				case records <- rec:
				default:
					slog.Warn("watch buffer full, record dropped", "id", rec.ID)
				}
			})
			if err != nil {
				return err
			}
			defer sub.Close()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case rec := <-records:
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "nats-url", "", "NATS server URL (defaults to NATS_URL)")
	cmd.Flags().StringVar(&prefix, "prefix", events.DefaultPrefix, "subject prefix")
	return cmd
}
