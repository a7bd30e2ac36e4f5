package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/finality/internal/control"
	"github.com/vietddude/finality/internal/core/domain"
)

var (
	sessionsTx    string
	sessionsLimit int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded finality sessions",
	Run:   runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsTx, "tx", "", "only show sessions for this transaction")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum number of sessions")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	store, err := control.OpenStore(ctx, control.FromAppConfig(cfg).Storage)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	var recs []*domain.SessionRecord
	if sessionsTx != "" {
		recs, err = store.Repo.ListByTx(ctx, domain.TransactionRef(sessionsTx))
	} else {
		recs, err = store.Repo.List(ctx, sessionsLimit)
	}
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SESSION\tTX\tSTATE\tQUERIES\tSTARTED\tRESOLVED\tERROR")
	for _, rec := range recs {
		resolved := "-"
		if rec.ResolvedAt != nil {
			resolved = rec.ResolvedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.ID, rec.TxID, rec.State, rec.Queries,
			rec.StartedAt.Format(time.RFC3339), resolved, rec.Error)
	}
	_ = w.Flush()
}
