package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kdani7777/Soothsayer/internal/app"
	"github.com/kdani7777/Soothsayer/internal/config"
	"github.com/kdani7777/Soothsayer/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "soothsayer",
		Short:        "race recommendation backend",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd(), ingestCmd(), queryCmd(), deleteIndexCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(os.Stdout, level)
	slog.SetDefault(log)
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API, ingest worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return run(ctx, cfg, log)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.VectorStore, deps.NSQProducer, log, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run(ctx)
}

func ingestCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest race documents from S3 once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.RequireEmbeddingKey(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			return withApp(ctx, cfg, log, func(a *app.App) error {
				report, err := a.Ingest(ctx, prefix)
				if printErr := printJSON(cmd, report); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "S3 key prefix (defaults to S3_PREFIX)")
	return cmd
}

func queryCmd() *cobra.Command {
	var filters []string
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "print the reranked race context for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			where, err := parseFilters(filters)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			return withApp(ctx, cfg, log, func(a *app.App) error {
				contexts, err := a.Retrieval.Context(ctx, args[0], where)
				if err != nil {
					return err
				}
				for i, c := range contexts {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n\n", i+1, c)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "metadata filter as key=value, repeatable")
	return cmd
}

func deleteIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-index [name]",
		Short: "drop a class or collection from the vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			store, closer, err := app.NewVectorStore(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			if err := store.DeleteIndex(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted index %s\n", args[0])
			return nil
		},
	}
}

func withApp(ctx context.Context, cfg *config.Config, log *slog.Logger, fn func(*app.App) error) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.VectorStore, deps.NSQProducer, log, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	return fn(application)
}

func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, f := range raw {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: filter %q must be key=value", config.ErrInvalid, f)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
