package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tradedash/internal/backend"
	"tradedash/internal/breakeven"
	"tradedash/internal/market"
	"tradedash/logger"
	"tradedash/models"
)

var tableQuote string

var tableCmd = &cobra.Command{
	Use:   "table BASE",
	Short: "Resolve and print the break-even table for a currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		quote := tableQuote
		if quote == "" {
			quote = cfg.Coordinator.DefaultQuote
		}
		pair := models.Pair{Base: models.CanonicalCode(args[0]), Quote: models.CanonicalCode(quote)}

		client, err := backend.NewClient(cfg.Backend)
		if err != nil {
			return fmt.Errorf("failed to create backend client: %w", err)
		}

		form := models.TradeForm{}
		if params, err := client.GetTradeParams(ctx, pair.Base); err != nil {
			logger.GetLogger().WithComponent("table").WithPair(pair.Base, pair.Quote).WithError(err).
				Warn("trade params unavailable, using defaults")
		} else {
			form = models.FormFromParams(params)
		}

		res := breakeven.NewReconciler(client).Resolve(ctx, pair, form)
		return printTable(cmd.OutOrStdout(), pair, res)
	},
}

func init() {
	tableCmd.Flags().StringVar(&tableQuote, "quote", "", "Quote currency (defaults to coordinator.default_quote)")
}

func printTable(out io.Writer, pair models.Pair, res breakeven.Result) error {
	fmt.Fprintf(out, "%s  source=%s  outcome=%s", pair.Label(), res.Provenance, res.Outcome)
	if res.StartPrice != nil {
		fmt.Fprintf(out, "  start_price=%s", market.FormatLegacy(*res.StartPrice))
	}
	fmt.Fprintln(out)

	if len(res.Table) == 0 {
		_, err := fmt.Fprintln(out, "no break-even table")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "step\tlevel\tdrop %\tstep %\trate\tpurchase\tinvested\tbreakeven\tbe %\ttarget %\t")
	for _, s := range res.Table {
		level := "-"
		if s.OrderbookLevel != nil {
			level = market.FormatLegacy(*s.OrderbookLevel)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Step,
			level,
			market.FormatPrice(s.CumulativeDecreasePct, 2),
			market.FormatPrice(s.DecreaseStepPct, 2),
			market.FormatLegacy(s.Rate),
			market.FormatPrice(s.PurchaseUSD, 2),
			market.FormatPrice(s.TotalInvested, 2),
			market.FormatLegacy(s.BreakevenPrice),
			market.FormatPrice(s.BreakevenPct, 2),
			market.FormatPrice(s.TargetDeltaPct, 2),
		)
	}
	return tw.Flush()
}

