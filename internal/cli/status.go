package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/finality/internal/core/domain"
	"github.com/vietddude/finality/internal/infra/rpc"
)

var statusCmd = &cobra.Command{
	Use:   "status [tx_id]",
	Short: "Query the node once for a transaction's status",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ref := domain.TransactionRef(args[0])

	client := rpc.NewClient("node", cfg.Node.URL, cfg.Node.Timeout,
		rpc.WithTransportRetries(cfg.Node.TransportRetries))
	defer func() {
		_ = client.Close()
	}()

	status, err := client.GetTransactionStatus(context.Background(), ref)
	if err != nil {
		slog.Error("Failed to query transaction status", "tx", ref, "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TX\tSTATE\tBLOCK\tHEAD\tIRREVERSIBLE\tFINALITY")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
		ref, status.State, status.BlockNumber, status.HeadNumber, status.IrreversibleNumber, status.Finality())
	_ = w.Flush()
}
