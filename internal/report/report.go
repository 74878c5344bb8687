// Package report computes derived statistics over the current plan and
// transaction snapshot. Every operation is read-only and tolerates an
// empty data set.
package report

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blurryplay/savings-tracker/internal/core"
)

const (
	// DefaultTrendMonths is the trailing window for the monthly trend.
	DefaultTrendMonths = 6
	// DefaultComparisonDays is the trailing window for the
	// contribution/withdrawal comparison.
	DefaultComparisonDays = 30
	// DefaultTopPlans caps the top-performing plans ranking.
	DefaultTopPlans = 5
)

// Store is the read surface the reporter needs.
type Store interface {
	Plans(ctx context.Context) ([]core.Plan, error)
	CountContributions(ctx context.Context) (int64, error)
	TransactionsSince(ctx context.Context, since time.Time) ([]core.Transaction, error)
}

// Reporter builds dashboard and chart aggregations from a Store.
type Reporter struct {
	store Store
	now   func() time.Time
}

func NewReporter(store Store) *Reporter {
	return &Reporter{store: store, now: time.Now}
}

// DashboardSummary is the headline view of all plans combined.
type DashboardSummary struct {
	TotalPlans         int     `json:"totalPlans"`
	TotalSavings       float64 `json:"totalSavings"`
	TotalTargets       float64 `json:"totalTargets"`
	TotalContributions int64   `json:"totalContributions"`
	AverageProgress    int     `json:"averageProgress"`
}

// Dashboard computes the summary. averageProgress is the rounded mean
// of each plan's raw (unrounded) progress percentage, with zero-target
// plans counting as 0.
func (r *Reporter) Dashboard(ctx context.Context) (DashboardSummary, error) {
	plans, err := r.store.Plans(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}
	count, err := r.store.CountContributions(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}

	summary := DashboardSummary{
		TotalPlans:         len(plans),
		TotalContributions: count,
	}
	var progressSum float64
	for _, p := range plans {
		summary.TotalSavings += p.CurrentBalance
		summary.TotalTargets += p.TargetAmount
		if p.TargetAmount > 0 {
			progressSum += p.CurrentBalance / p.TargetAmount * 100
		}
	}
	if len(plans) > 0 {
		summary.AverageProgress = int(math.Round(progressSum / float64(len(plans))))
	}
	return summary, nil
}

// monthKey identifies a calendar month.
type monthKey struct {
	year  int
	month time.Month
}

// MonthlyBucket carries one month's contribution and withdrawal totals.
// Withdrawals are reported as a positive magnitude.
type MonthlyBucket struct {
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Label         string  `json:"label"`
	Contributions float64 `json:"contributions"`
	Withdrawals   float64 `json:"withdrawals"`
}

// MonthlyTrend buckets the trailing windowMonths of transactions by
// calendar month, ascending. Months without transactions are omitted.
func (r *Reporter) MonthlyTrend(ctx context.Context, windowMonths int) ([]MonthlyBucket, error) {
	if windowMonths <= 0 {
		windowMonths = DefaultTrendMonths
	}
	since := r.now().AddDate(0, -windowMonths, 0)
	txs, err := r.store.TransactionsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	buckets := make(map[monthKey]*MonthlyBucket)
	for _, t := range txs {
		key := monthKey{year: t.CreatedAt.Year(), month: t.CreatedAt.Month()}
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyBucket{
				Year:  key.year,
				Month: int(key.month),
				Label: time.Date(key.year, key.month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
			}
			buckets[key] = b
		}
		if t.Amount > 0 {
			b.Contributions += t.Amount
		} else {
			b.Withdrawals += -t.Amount
		}
	}

	out := make([]MonthlyBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

// ProgressDistribution counts plans per progress band. The bands are
// mutually exclusive and cover every plan.
type ProgressDistribution struct {
	Completed   int `json:"completed"`   // >= 100
	AlmostThere int `json:"almostThere"` // 75-99
	OnTrack     int `json:"onTrack"`     // 50-74
	Started     int `json:"started"`     // 1-49
	NotStarted  int `json:"notStarted"`  // <= 0
}

func (r *Reporter) ProgressDistribution(ctx context.Context) (ProgressDistribution, error) {
	plans, err := r.store.Plans(ctx)
	if err != nil {
		return ProgressDistribution{}, err
	}
	var dist ProgressDistribution
	for _, p := range plans {
		switch progress := p.Progress(); {
		case progress >= 100:
			dist.Completed++
		case progress >= 75:
			dist.AlmostThere++
		case progress >= 50:
			dist.OnTrack++
		case progress >= 1:
			dist.Started++
		default:
			dist.NotStarted++
		}
	}
	return dist, nil
}

// PlanProgress is one row of the top-performing ranking.
type PlanProgress struct {
	PlanID   string `json:"planId"`
	GoalName string `json:"goalName"`
	Progress int    `json:"progress"`
}

// TopPerformingPlans ranks plans with a positive target by progress,
// descending, keeping the store's original order among ties.
func (r *Reporter) TopPerformingPlans(ctx context.Context, limit int) ([]PlanProgress, error) {
	if limit <= 0 {
		limit = DefaultTopPlans
	}
	plans, err := r.store.Plans(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]PlanProgress, 0, len(plans))
	for _, p := range plans {
		if p.TargetAmount <= 0 {
			continue
		}
		ranked = append(ranked, PlanProgress{PlanID: p.ID, GoalName: p.GoalName, Progress: p.Progress()})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Progress > ranked[j].Progress
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// ContributionComparison totals money in and money out over a trailing
// window. Withdrawals are a positive magnitude.
type ContributionComparison struct {
	Contributions float64 `json:"contributions"`
	Withdrawals   float64 `json:"withdrawals"`
}

func (r *Reporter) ContributionComparison(ctx context.Context, windowDays int) (ContributionComparison, error) {
	if windowDays <= 0 {
		windowDays = DefaultComparisonDays
	}
	since := r.now().AddDate(0, 0, -windowDays)
	txs, err := r.store.TransactionsSince(ctx, since)
	if err != nil {
		return ContributionComparison{}, err
	}
	var cmp ContributionComparison
	for _, t := range txs {
		if t.Amount > 0 {
			cmp.Contributions += t.Amount
		} else {
			cmp.Withdrawals += -t.Amount
		}
	}
	return cmp, nil
}

// categoryRule maps goal-name keywords to a category. Rules are checked
// in order and the first match wins.
type categoryRule struct {
	name     string
	keywords []string
}

var categoryRules = []categoryRule{
	{"education", []string{"school", "fees", "education"}},
	{"emergency fund", []string{"emergency"}},
	{"clothing", []string{"uniform", "clothes"}},
	{"transport", []string{"transport", "travel"}},
	{"electronics", []string{"laptop", "computer", "phone"}},
	{"books & supplies", []string{"book", "stationery"}},
}

const categoryOther = "other"

// Categorize assigns a plan's goal name to a category by
// case-insensitive keyword match.
func Categorize(goalName string) string {
	name := strings.ToLower(goalName)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.name
			}
		}
	}
	return categoryOther
}

// CategoryTotal is one slice of the savings-by-category breakdown.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// SavingsByCategory sums plan balances per category. Only categories
// with at least one plan appear, in the fixed rule order with "other"
// last.
func (r *Reporter) SavingsByCategory(ctx context.Context) ([]CategoryTotal, error) {
	plans, err := r.store.Plans(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	counts := make(map[string]int)
	for _, p := range plans {
		cat := Categorize(p.GoalName)
		totals[cat] += p.CurrentBalance
		counts[cat]++
	}

	var out []CategoryTotal
	for _, rule := range categoryRules {
		if counts[rule.name] > 0 {
			out = append(out, CategoryTotal{Category: rule.name, Total: totals[rule.name]})
		}
	}
	if counts[categoryOther] > 0 {
		out = append(out, CategoryTotal{Category: categoryOther, Total: totals[categoryOther]})
	}
	return out, nil
}

// ChartBundle aggregates every chart in one response. Individual chart
// failures degrade to empty structures instead of failing the bundle.
type ChartBundle struct {
	MonthlyTrend           []MonthlyBucket        `json:"monthlyTrend"`
	ProgressDistribution   ProgressDistribution   `json:"progressDistribution"`
	TopPlans               []PlanProgress         `json:"topPlans"`
	ContributionComparison ContributionComparison `json:"contributionComparison"`
	SavingsByCategory      []CategoryTotal        `json:"savingsByCategory"`
}

// Charts computes all chart aggregations concurrently.
func (r *Reporter) Charts(ctx context.Context) ChartBundle {
	var bundle ChartBundle
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		trend, err := r.MonthlyTrend(gctx, DefaultTrendMonths)
		if err != nil {
			slog.ErrorContext(gctx, "monthly trend aggregation failed", "error", err)
			return nil
		}
		bundle.MonthlyTrend = trend
		return nil
	})
	g.Go(func() error {
		dist, err := r.ProgressDistribution(gctx)
		if err != nil {
			slog.ErrorContext(gctx, "progress distribution aggregation failed", "error", err)
			return nil
		}
		bundle.ProgressDistribution = dist
		return nil
	})
	g.Go(func() error {
		top, err := r.TopPerformingPlans(gctx, DefaultTopPlans)
		if err != nil {
			slog.ErrorContext(gctx, "top plans aggregation failed", "error", err)
			return nil
		}
		bundle.TopPlans = top
		return nil
	})
	g.Go(func() error {
		cmp, err := r.ContributionComparison(gctx, DefaultComparisonDays)
		if err != nil {
			slog.ErrorContext(gctx, "contribution comparison aggregation failed", "error", err)
			return nil
		}
		bundle.ContributionComparison = cmp
		return nil
	})
	g.Go(func() error {
		cats, err := r.SavingsByCategory(gctx)
		if err != nil {
			slog.ErrorContext(gctx, "savings by category aggregation failed", "error", err)
			return nil
		}
		bundle.SavingsByCategory = cats
		return nil
	})

	g.Wait()
	return bundle
}
