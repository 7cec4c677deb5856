package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tradedash/internal/backend"
	"tradedash/internal/market"
	"tradedash/models"
)

var (
	bookQuote string
	bookForce bool
)

var bookCmd = &cobra.Command{
	Use:   "book BASE",
	Short: "Fetch, normalize and print the order book for a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		quote := bookQuote
		if quote == "" {
			quote = cfg.Coordinator.DefaultQuote
		}
		pair := models.Pair{Base: models.CanonicalCode(args[0]), Quote: models.CanonicalCode(quote)}

		client, err := backend.NewClient(cfg.Backend)
		if err != nil {
			return fmt.Errorf("failed to create backend client: %w", err)
		}

		data, err := client.GetPairData(ctx, pair.Base, pair.Quote, bookForce)
		if err != nil {
			return fmt.Errorf("failed to fetch order book for %s: %w", pair, err)
		}
		return printBook(cmd.OutOrStdout(), pair, data)
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookQuote, "quote", "", "Quote currency (defaults to coordinator.default_quote)")
	bookCmd.Flags().BoolVar(&bookForce, "force", false, "Bypass the backend cache")
}

func printBook(out io.Writer, pair models.Pair, data models.PairData) error {
	view := market.Normalize(data.OrderBook)
	precision := market.PricePrecision(data.Ticker.Last)

	fmt.Fprintf(out, "%s  last=%s", pair.Label(), market.FormatPrice(data.Ticker.Last, precision))
	if abs, pct, ok := market.Spread(view); ok {
		fmt.Fprintf(out, "  spread=%s (%s%%)", market.FormatPrice(abs, precision), market.FormatPrice(pct, 3))
	}
	if view.Dropped > 0 {
		fmt.Fprintf(out, "  dropped=%d", view.Dropped)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "side\tprice\tamount\tnotional\tcumulative\t")
	writeSide(tw, "ask", view.Asks, precision)
	if view.Mid != nil {
		fmt.Fprintf(tw, "mid\t%s\t\t\t\t\n", market.FormatPrice(*view.Mid, precision))
	}
	writeSide(tw, "bid", view.Bids, precision)
	return tw.Flush()
}

func writeSide(w io.Writer, side string, rows []models.DepthRow, precision int) {
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			side,
			market.FormatPrice(r.Price, precision),
			market.FormatLegacy(r.Amount),
			market.FormatLegacy(r.Notional),
			market.FormatLegacy(r.Cumulative),
		)
	}
}
