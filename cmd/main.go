package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/app"
)

var (
	configFile string
	jsonOutput bool
	cfg        app.Config
)

var rootCmd = &cobra.Command{
	Use:   "brandbuilder",
	Short: "BrandBuilder stage execution and job orchestration",
	Long: `BrandBuilder runs brand-strategy stages for projects through AI providers.
Stages form a dependency graph; each run is a job on a durable queue, each
result an immutable output version that can be approved or superseded.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := app.NewViper(configFile)
		if err != nil {
			return err
		}
		cfg, err = app.LoadConfig(v)
		return err
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "yaml config file (env vars still override)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

// withApp builds the full application for one command and closes it after.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	var (
		addr       string
		withWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if withWorker {
					a.StartWorker(cmd.Context())
				}
				return a.Run(cmd.Context(), addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "run the job worker in the same process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				a.Log.Info("worker starting", "worker_id", a.Services.JobWorker.ID(), "concurrency", cfg.Worker.Concurrency)
				if err := a.Services.JobWorker.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}
