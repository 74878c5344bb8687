package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blurryplay/savings-tracker/internal/core"
)

type stubStore struct {
	plans   []core.Plan
	txs     []core.Transaction
	failAll bool
}

func (s *stubStore) Plans(context.Context) ([]core.Plan, error) {
	if s.failAll {
		return nil, errors.New("store down")
	}
	return s.plans, nil
}

func (s *stubStore) CountContributions(context.Context) (int64, error) {
	if s.failAll {
		return 0, errors.New("store down")
	}
	var n int64
	for _, t := range s.txs {
		if t.Amount > 0 {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) TransactionsSince(_ context.Context, since time.Time) ([]core.Transaction, error) {
	if s.failAll {
		return nil, errors.New("store down")
	}
	var out []core.Transaction
	for _, t := range s.txs {
		if !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func fixedReporter(store Store, now time.Time) *Reporter {
	r := NewReporter(store)
	r.now = func() time.Time { return now }
	return r
}

func plan(name string, balance, target float64) core.Plan {
	return core.Plan{ID: name, GoalName: name, CurrentBalance: balance, TargetAmount: target}
}

func TestDashboardSummary(t *testing.T) {
	store := &stubStore{
		plans: []core.Plan{
			plan("School Fees", 3000, 10000),
			plan("Laptop", 7000, 10000),
		},
		txs: []core.Transaction{
			{Amount: 3000}, {Amount: 8000}, {Amount: -1000},
		},
	}
	r := NewReporter(store)

	got, err := r.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	want := DashboardSummary{
		TotalPlans:         2,
		TotalSavings:       10000,
		TotalTargets:       20000,
		TotalContributions: 2,
		AverageProgress:    50,
	}
	if got != want {
		t.Errorf("Dashboard() = %+v, want %+v", got, want)
	}
}

func TestDashboardEmpty(t *testing.T) {
	r := NewReporter(&stubStore{})
	got, err := r.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if got != (DashboardSummary{}) {
		t.Errorf("Dashboard() on empty store = %+v, want zeroes", got)
	}
}

// Zero-target plans contribute 0 to the average instead of dividing by
// zero.
func TestDashboardZeroTargetPlan(t *testing.T) {
	store := &stubStore{plans: []core.Plan{
		plan("Free Goal", 500, 0),
		plan("Books", 50, 100),
	}}
	got, err := NewReporter(store).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if got.AverageProgress != 25 {
		t.Errorf("averageProgress = %d, want 25 ((0+50)/2)", got.AverageProgress)
	}
}

func TestMonthlyTrend(t *testing.T) {
	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	store := &stubStore{txs: []core.Transaction{
		{Amount: 1000, CreatedAt: now.AddDate(0, -2, 0)}, // April
		{Amount: 500, CreatedAt: now.AddDate(0, -2, 1)},  // April
		{Amount: -200, CreatedAt: now.AddDate(0, -2, 2)}, // April
		{Amount: 300, CreatedAt: now.AddDate(0, 0, -1)},  // June
		{Amount: 999, CreatedAt: now.AddDate(0, -8, 0)},  // outside window
	}}
	r := fixedReporter(store, now)

	got, err := r.MonthlyTrend(context.Background(), 6)
	if err != nil {
		t.Fatalf("MonthlyTrend: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("buckets = %d, want 2 (empty months omitted)", len(got))
	}
	april, june := got[0], got[1]
	if april.Label != "2026-04" || june.Label != "2026-06" {
		t.Errorf("labels = %q, %q, want ascending 2026-04, 2026-06", april.Label, june.Label)
	}
	if april.Contributions != 1500 || april.Withdrawals != 200 {
		t.Errorf("april = %+v, want contributions 1500 withdrawals 200", april)
	}
	if june.Contributions != 300 || june.Withdrawals != 0 {
		t.Errorf("june = %+v, want contributions 300 withdrawals 0", june)
	}
}

func TestProgressDistribution(t *testing.T) {
	store := &stubStore{plans: []core.Plan{
		plan("done", 12000, 10000),        // 120 -> completed
		plan("exactly done", 100, 100),    // 100 -> completed
		plan("almost", 80, 100),           // 80 -> almostThere
		plan("half", 60, 100),             // 60 -> onTrack
		plan("going", 10, 100),            // 10 -> started
		plan("fresh", 0, 100),             // 0 -> notStarted
		plan("no target", 500, 0),         // guarded 0 -> notStarted
		plan("rounds to zero", 0.2, 1000), // round(0.02) = 0 -> notStarted
	}}
	got, err := NewReporter(store).ProgressDistribution(context.Background())
	if err != nil {
		t.Fatalf("ProgressDistribution: %v", err)
	}
	want := ProgressDistribution{Completed: 2, AlmostThere: 1, OnTrack: 1, Started: 1, NotStarted: 3}
	if got != want {
		t.Errorf("ProgressDistribution() = %+v, want %+v", got, want)
	}
}

func TestTopPerformingPlans(t *testing.T) {
	store := &stubStore{plans: []core.Plan{
		plan("a", 10, 100), // 10
		plan("b", 90, 100), // 90
		plan("c", 50, 100), // 50, ties with d
		plan("d", 50, 100), // 50, after c
		plan("skip", 999, 0),
		plan("e", 70, 100), // 70
		plan("f", 30, 100), // 30
		plan("g", 20, 100), // 20
	}}
	got, err := NewReporter(store).TopPerformingPlans(context.Background(), 5)
	if err != nil {
		t.Fatalf("TopPerformingPlans: %v", err)
	}
	wantOrder := []string{"b", "e", "c", "d", "f"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(got), len(wantOrder))
	}
	for i, name := range wantOrder {
		if got[i].GoalName != name {
			t.Errorf("rank %d = %q, want %q (stable tie order)", i, got[i].GoalName, name)
		}
	}
}

func TestContributionComparison(t *testing.T) {
	now := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	store := &stubStore{txs: []core.Transaction{
		{Amount: 400, CreatedAt: now.AddDate(0, 0, -5)},
		{Amount: -150, CreatedAt: now.AddDate(0, 0, -10)},
		{Amount: 100, CreatedAt: now.AddDate(0, 0, -45)}, // outside window
	}}
	r := fixedReporter(store, now)

	got, err := r.ContributionComparison(context.Background(), 30)
	if err != nil {
		t.Fatalf("ContributionComparison: %v", err)
	}
	if got.Contributions != 400 || got.Withdrawals != 150 {
		t.Errorf("comparison = %+v, want contributions 400 withdrawals 150", got)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		goalName string
		want     string
	}{
		{"School Fees", "education"},
		{"University Education Fund", "education"},
		{"School Fees Emergency", "education"}, // first rule wins
		{"Emergency Fund", "emergency fund"},
		{"New Uniform", "clothing"},
		{"Winter Clothes", "clothing"},
		{"Transport Money", "transport"},
		{"Travel to Mombasa", "transport"},
		{"Gaming Laptop", "electronics"},
		{"New PHONE", "electronics"},
		{"Book Collection", "books & supplies"},
		{"Stationery Supplies", "books & supplies"},
		{"Wedding", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		if got := Categorize(tt.goalName); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.goalName, got, tt.want)
		}
	}
}

func TestSavingsByCategory(t *testing.T) {
	store := &stubStore{plans: []core.Plan{
		plan("School Fees", 3000, 10000),
		plan("Education Fund", 2000, 5000),
		plan("Gaming Laptop", 1500, 4000),
		plan("Wedding", 800, 2000),
	}}
	got, err := NewReporter(store).SavingsByCategory(context.Background())
	if err != nil {
		t.Fatalf("SavingsByCategory: %v", err)
	}
	want := []CategoryTotal{
		{"education", 5000},
		{"electronics", 1500},
		{"other", 800},
	}
	if len(got) != len(want) {
		t.Fatalf("categories = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("category %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// The chart bundle never fails: a broken store yields zeroed charts.
func TestChartsDegradeOnStoreFailure(t *testing.T) {
	r := NewReporter(&stubStore{failAll: true})
	bundle := r.Charts(context.Background())
	if len(bundle.MonthlyTrend) != 0 || len(bundle.TopPlans) != 0 || len(bundle.SavingsByCategory) != 0 {
		t.Errorf("bundle on store failure = %+v, want empty structures", bundle)
	}
	if bundle.ProgressDistribution != (ProgressDistribution{}) {
		t.Errorf("distribution = %+v, want zeroes", bundle.ProgressDistribution)
	}
}

func TestChartsBundle(t *testing.T) {
	now := time.Now()
	store := &stubStore{
		plans: []core.Plan{
			plan("School Fees", 5000, 15000),
			plan("Emergency Fund", 9000, 10000),
		},
		txs: []core.Transaction{
			{Amount: 5000, CreatedAt: now.AddDate(0, 0, -3)},
			{Amount: 10000, CreatedAt: now.AddDate(0, 0, -2)},
			{Amount: -1000, CreatedAt: now.AddDate(0, 0, -1)},
		},
	}
	bundle := fixedReporter(store, now).Charts(context.Background())

	if len(bundle.MonthlyTrend) == 0 {
		t.Error("monthly trend empty")
	}
	if bundle.ProgressDistribution.AlmostThere != 1 || bundle.ProgressDistribution.Started != 1 {
		t.Errorf("distribution = %+v", bundle.ProgressDistribution)
	}
	if len(bundle.TopPlans) != 2 || bundle.TopPlans[0].GoalName != "Emergency Fund" {
		t.Errorf("top plans = %+v", bundle.TopPlans)
	}
	if bundle.ContributionComparison.Contributions != 15000 || bundle.ContributionComparison.Withdrawals != 1000 {
		t.Errorf("comparison = %+v", bundle.ContributionComparison)
	}
	if len(bundle.SavingsByCategory) != 2 {
		t.Errorf("categories = %+v", bundle.SavingsByCategory)
	}
}
