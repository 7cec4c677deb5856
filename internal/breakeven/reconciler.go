// Package breakeven decides whether the break-even table shown for a pair
// comes from a running accumulation cycle or from a fresh backend preview.
package breakeven

import (
	"context"
	"math"
	"time"

	"tradedash/logger"
	"tradedash/models"
)

// Source is the slice of the backend the reconciler needs.
type Source interface {
	GetTradeIndicators(ctx context.Context, base, quote string, includeTable bool) (models.TradeIndicators, error)
	GetBreakEvenTable(ctx context.Context, req models.BreakEvenRequest) (models.BreakEvenTable, error)
}

// Provenance says where a resolved table came from.
type Provenance string

const (
	ProvenanceCached     Provenance = "cached"
	ProvenanceRecomputed Provenance = "recomputed"
	ProvenanceEmpty      Provenance = "empty"
)

// Outcome is the terminal state a resolution ended in.
type Outcome string

const (
	OutcomeReturnCached   Outcome = "RETURN_CACHED"
	OutcomeReturnComputed Outcome = "RETURN_COMPUTED"
	OutcomeReturnEmpty    Outcome = "RETURN_EMPTY_ON_ERROR"
)

// Recompute defaults used when a form field is missing or does not parse.
const (
	DefaultSteps          = 16
	DefaultStartVolume    = 3.0
	DefaultPprof          = 0.6
	DefaultKprof          = 0.02
	DefaultTargetR        = 3.65
	DefaultRk             = 0.0
	DefaultGeomMultiplier = 2.0
	DefaultRebuyMode      = "geometric"
	DefaultOrderbookLevel = 1.0
)

// Result is a resolved table plus how it was obtained.
type Result struct {
	Table      models.BreakEvenTable `json:"table"`
	Provenance Provenance            `json:"provenance"`
	Outcome    Outcome               `json:"outcome"`
	Migrated   bool                  `json:"migrated"`

	// StartPrice is the running cycle's persisted start price. Only set for
	// cached tables that carry a positive price; callers mirror it into the
	// visible form.
	StartPrice *float64 `json:"start_price,omitempty"`

	// Levels is the autotrade block from the indicators call, when it succeeded.
	Levels *models.AutotradeLevels `json:"autotrade_levels,omitempty"`
}

// Reconciler resolves break-even tables. It holds no per-pair state.
type Reconciler struct {
	source Source
	log    *logger.Log
}

func NewReconciler(source Source) *Reconciler {
	return &Reconciler{source: source, log: logger.GetLogger()}
}

// Resolve returns the table for pair. It never fails: errors collapse into an
// empty table with OutcomeReturnEmpty.
func (r *Reconciler) Resolve(ctx context.Context, pair models.Pair, form models.TradeForm) Result {
	log := r.log.WithComponent("breakeven").WithPair(pair.Base, pair.Quote)
	start := time.Now()

	var levels *models.AutotradeLevels
	ind, err := r.source.GetTradeIndicators(ctx, pair.Base, pair.Quote, true)
	if err != nil {
		log.WithError(err).Warn("indicators unavailable, recomputing table")
	} else {
		al := ind.AutotradeLevels
		levels = &al
		if al.ActiveCycle && len(al.Table) > 0 {
			table := cloneTable(al.Table)
			migrated := Migrate(table, form.FloatOr(models.FieldOrderbookLevel, 0))
			log.WithFields(logger.Fields{
				"rows":     len(table),
				"migrated": migrated,
			}).Debug("using table of active cycle")
			logger.LogPerformanceEntry(log, "breakeven", "resolve_cached", time.Since(start), nil)
			res := Result{
				Table:      table,
				Provenance: ProvenanceCached,
				Outcome:    OutcomeReturnCached,
				Migrated:   migrated,
				Levels:     levels,
			}
			if al.StartPrice > 0 {
				startPrice := al.StartPrice
				res.StartPrice = &startPrice
			}
			return res
		}
	}

	req := BuildRecomputeRequest(pair, form)
	table, err := r.source.GetBreakEvenTable(ctx, req)
	if err != nil {
		log.WithError(err).Warn("break-even recompute failed")
		return Result{
			Table:      models.BreakEvenTable{},
			Provenance: ProvenanceEmpty,
			Outcome:    OutcomeReturnEmpty,
			Levels:     levels,
		}
	}
	if table == nil {
		table = models.BreakEvenTable{}
	}
	logger.LogPerformanceEntry(log, "breakeven", "resolve_recompute", time.Since(start), logger.Fields{"rows": len(table)})
	return Result{
		Table:      table,
		Provenance: ProvenanceRecomputed,
		Outcome:    OutcomeReturnComputed,
		Levels:     levels,
	}
}

// Migrate fills orderbook_level on tables cached before the field existed.
// Only tables whose first row lacks the field are touched; row i gets
// round(i*level + 1). It reports whether anything changed.
func Migrate(table models.BreakEvenTable, level float64) bool {
	if len(table) == 0 || table[0].OrderbookLevel != nil {
		return false
	}
	for i := range table {
		v := math.Floor(float64(i)*level + 1 + 0.5)
		table[i].OrderbookLevel = &v
	}
	return true
}

// BuildRecomputeRequest turns the form into a preview request. StartPrice is
// left unset so the backend substitutes its last known price.
func BuildRecomputeRequest(pair models.Pair, form models.TradeForm) models.BreakEvenRequest {
	return models.BreakEvenRequest{
		Currency:       pair.Base,
		QuoteCurrency:  pair.Quote,
		Steps:          form.IntOr(models.FieldSteps, DefaultSteps),
		StartVolume:    form.FloatOr(models.FieldStartVolume, DefaultStartVolume),
		Pprof:          form.FloatOr(models.FieldPprof, DefaultPprof),
		Kprof:          form.FloatOr(models.FieldKprof, DefaultKprof),
		TargetR:        form.FloatOr(models.FieldTargetR, DefaultTargetR),
		Rk:             form.FloatOr(models.FieldRk, DefaultRk),
		GeomMultiplier: form.FloatOr(models.FieldGeomMultiplier, DefaultGeomMultiplier),
		RebuyMode:      form.StringOr(models.FieldRebuyMode, DefaultRebuyMode),
		OrderbookLevel: form.FloatOr(models.FieldOrderbookLevel, DefaultOrderbookLevel),
	}
}

func cloneTable(in models.BreakEvenTable) models.BreakEvenTable {
	out := make(models.BreakEvenTable, len(in))
	for i, s := range in {
		if s.OrderbookLevel != nil {
			v := *s.OrderbookLevel
			s.OrderbookLevel = &v
		}
		out[i] = s
	}
	return out
}
