package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddvo/chorelist/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show list sizes per user",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT username,
		       count(*),
		       count(*) FILTER (WHERE bought),
		       max(added)
		FROM shopping_lists
		GROUP BY username
		ORDER BY username`)
	if err != nil {
		slog.Error("Failed to query shopping lists", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "USER\tITEMS\tBOUGHT\tLAST ADDED")

	for rows.Next() {
		var username string
		var total, bought int
		var lastAdded time.Time
		if err := rows.Scan(&username, &total, &bought, &lastAdded); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			username, total, bought, lastAdded.Format(time.RFC3339))
	}

	_ = w.Flush()
}
