package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ddvo/chorelist/internal/chores"
	"github.com/ddvo/chorelist/internal/control"
)

var addCmd = &cobra.Command{
	Use:   "add <username> <item> [quantity]",
	Short: "Add an item to a user's shopping list",
	Args:  cobra.RangeArgs(2, 3),
	Run:   runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list <username>",
	Short: "Show a user's shopping list",
	Args:  cobra.ExactArgs(1),
	Run:   runList,
}

var buyCmd = &cobra.Command{
	Use:   "buy <username> [item-id]",
	Short: "Mark an item as bought (oldest item when no id is given)",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runBuy,
}

var removeCmd = &cobra.Command{
	Use:   "remove <username> [item-id]",
	Short: "Remove an item from a user's shopping list (oldest item when no id is given)",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runRemove,
}

func init() {
	rootCmd.AddCommand(addCmd, listCmd, buyCmd, removeCmd)
}

// withService connects to the configured backends and hands the wired
// service to fn, tearing the connections down after.
func withService(fn func(ctx context.Context, svc *chores.Service) error) {
	cfg := setup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := fn(ctx, app.Service()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func runAdd(cmd *cobra.Command, args []string) {
	quantity := 1
	if len(args) == 3 {
		q, err := strconv.Atoi(args[2])
		if err != nil {
			slog.Error("Invalid quantity", "value", args[2])
			os.Exit(1)
		}
		quantity = q
	}

	withService(func(ctx context.Context, svc *chores.Service) error {
		item, err := svc.AddItem(ctx, args[0], args[1], quantity)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s (x%d) for %s: %s\n", item.Name, item.Quantity, item.Username, item.ID)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) {
	withService(func(ctx context.Context, svc *chores.Service) error {
		items, err := svc.ListItems(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		fmt.Fprintln(w, "ID\tITEM\tQTY\tBOUGHT\tADDED")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n",
				item.ID, item.Name, item.Quantity, item.Bought,
				item.Added.Format(time.RFC3339))
		}
		return w.Flush()
	})
}

// resolveItem picks the target item: an explicit id when given, otherwise the
// oldest item on the list.
func resolveItem(ctx context.Context, svc *chores.Service, args []string) (uuid.UUID, error) {
	if len(args) == 2 {
		return uuid.Parse(args[1])
	}
	item, err := svc.NextItem(ctx, args[0])
	if err != nil {
		return uuid.Nil, err
	}
	return item.ID, nil
}

func runBuy(cmd *cobra.Command, args []string) {
	withService(func(ctx context.Context, svc *chores.Service) error {
		id, err := resolveItem(ctx, svc, args)
		if err != nil {
			return err
		}
		item, err := svc.MarkBought(ctx, args[0], id)
		if err != nil {
			return err
		}
		fmt.Printf("Bought %s (x%d)\n", item.Name, item.Quantity)
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) {
	withService(func(ctx context.Context, svc *chores.Service) error {
		id, err := resolveItem(ctx, svc, args)
		if err != nil {
			return err
		}
		remaining, err := svc.RemoveItem(ctx, args[0], id)
		if err != nil {
			return err
		}
		fmt.Printf("Removed item; %d left on the list\n", remaining)
		return nil
	})
}
