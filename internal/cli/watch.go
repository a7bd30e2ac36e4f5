package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/finality/internal/control"
	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/ui"
)

var watchTick time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [tx_id]",
	Short: "Wait in the foreground until a broadcast transaction is irreversible",
	Args:  cobra.ExactArgs(1),
	Run:   runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchTick, "tick", ui.DefaultTick, "countdown report interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ref := domain.TransactionRef(args[0])

	ctx := context.Background()
	app, err := control.NewApp(ctx, control.FromAppConfig(cfg))
	if err != nil {
		slog.Error("Failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}

	console := ui.NewConsole(ui.WithTick(watchTick))
	sessions, err := app.Broadcast(ctx, ref, console)
	if err != nil {
		slog.Error("Failed to start finality check", "tx", ref, "error", err)
		stop()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	failed := false
	for _, s := range sessions {
		select {
		case <-s.Done():
		case sig := <-sigChan:
			slog.Info("Received signal, dismissing prompt", "signal", sig)
			console.Dismiss()
			<-s.Done()
		}

		rec := s.Record()
		slog.Info("Finality check finished",
			"tx", ref,
			"session", rec.ID,
			"state", rec.State,
			"queries", rec.Queries,
			"error", rec.Error,
		)
		if rec.State != domain.SessionStateConfirmed {
			failed = true
		}
	}

	stop()
	if failed {
		os.Exit(1)
	}
}
