package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/estimator"
	"lightning-fee-lab/internal/storage"
)

// Generator produces day reports from stored data.
type Generator struct {
	dayStore      storage.DayStore
	overpaidStore storage.OverpaidStore // may be nil
	now           func() time.Time      // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(dayStore storage.DayStore, overpaidStore storage.OverpaidStore) *Generator {
	return &Generator{
		dayStore:      dayStore,
		overpaidStore: overpaidStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads the stored aggregate of day and its overpaid rows.
// Returns storage.ErrNotFound if the day has not been computed.
func (g *Generator) Generate(ctx context.Context, day time.Time, ladder *estimator.Ladder) (*DayReport, error) {
	agg, err := g.dayStore.GetByDay(ctx, day)
	if err != nil {
		return nil, err
	}

	var overpaid []domain.OverpaidPayment
	if g.overpaidStore != nil {
		overpaid, err = g.overpaidStore.GetByDay(ctx, day)
		if err != nil {
			return nil, err
		}
	}

	return &DayReport{
		GeneratedAt: g.now(),
		Day:         agg,
		Ladder:      LadderRows(ladder),
		Overpaid:    overpaid,
	}, nil
}

// WriteFiles writes day-<date>.md and, when overpaid rows are present,
// overpaid-<date>.csv to dir. Returns the written paths.
func WriteFiles(dir string, r *DayReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	key := r.Day.DayKey()
	md := RenderDayMarkdown(r.Day, r.Ladder) +
		fmt.Sprintf("Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))

	reportPath := filepath.Join(dir, "day-"+key+".md")
	if err := os.WriteFile(reportPath, []byte(md), 0644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	paths := []string{reportPath}

	if len(r.Overpaid) > 0 {
		csvPath := filepath.Join(dir, "overpaid-"+key+".csv")
		if err := os.WriteFile(csvPath, []byte(RenderOverpaidCSV(r.Overpaid)), 0644); err != nil {
			return nil, fmt.Errorf("write overpaid csv: %w", err)
		}
		paths = append(paths, csvPath)
	}

	return paths, nil
}
