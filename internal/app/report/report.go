// Package report builds the close-speed report: closed funding targets
// ranked by how long they took to collect their full amount.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/fundbridge/fundbridge/internal/domain"
	"github.com/fundbridge/fundbridge/internal/infra/dsa"
)

// Format selects a report encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatCSV, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown report format %q", domain.ErrInvalidInput, s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Row is one ranked target.
type Row struct {
	ID             int64         `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	CollectionTime time.Duration `json:"-" yaml:"-"`
	Seconds        float64       `json:"collection_time_seconds" yaml:"collection_time_seconds"`
	Description    string        `json:"description" yaml:"description"`
}

// Report is a ranking snapshot.
type Report struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Rows        []Row     `json:"projects" yaml:"projects"`
}

// TargetLister is the read side the report needs.
type TargetLister interface {
	ListFundingTargets(ctx context.Context) ([]domain.FundingTarget, error)
}

// Generator produces reports from the current ledger state.
type Generator struct {
	targets TargetLister
	now     func() time.Time
}

// NewGenerator creates a Generator. A nil now uses the wall clock.
func NewGenerator(targets TargetLister, now func() time.Time) *Generator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Generator{targets: targets, now: now}
}

// Generate ranks the closed targets. limit <= 0 keeps every row.
func (g *Generator) Generate(ctx context.Context, limit int) (Report, error) {
	targets, err := g.targets.ListFundingTargets(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("generate report: %w", err)
	}
	return Build(g.now(), targets, limit), nil
}

// Build ranks closed targets by collection time, fastest first. Ties go to
// the lower id. Open targets are skipped.
func Build(generatedAt time.Time, targets []domain.FundingTarget, limit int) Report {
	pq := dsa.NewPriorityQueue(func(a, b Row) bool {
		if a.CollectionTime != b.CollectionTime {
			return a.CollectionTime < b.CollectionTime
		}
		return a.ID < b.ID
	})
	for _, t := range targets {
		if !t.FullyInvested || t.ClosedAt == nil {
			continue
		}
		d := t.ClosedAt.Sub(t.CreatedAt)
		pq.Push(Row{
			ID:             t.ID,
			Name:           t.Name,
			CollectionTime: d,
			Seconds:        d.Seconds(),
			Description:    t.Description,
		})
	}
	return Report{GeneratedAt: generatedAt, Rows: pq.Drain(limit)}
}

// ─── Rendering ──────────────────────────────────────────────────────────────

var columns = []string{"Name", "Collection time", "Description"}

// Render writes r to w in the given format.
func Render(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, r)
	case FormatTable:
		return renderTable(w, r)
	default:
		return fmt.Errorf("%w: unknown report format %q", domain.ErrInvalidInput, f)
	}
}

func renderCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Report generated", r.GeneratedAt.Format(time.RFC3339)},
		{"Top projects by collection speed"},
		columns,
	}
	for _, row := range r.Rows {
		records = append(records, []string{row.Name, FormatDuration(row.CollectionTime), row.Description})
	}
	return cw.WriteAll(records)
}

func renderTable(w io.Writer, r Report) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...)
	for _, row := range r.Rows {
		t.Row(row.Name, FormatDuration(row.CollectionTime), row.Description)
	}
	_, err := fmt.Fprintf(w, "Report generated %s\n%s\n", r.GeneratedAt.Format(time.RFC3339), t.Render())
	return err
}

// FormatDuration renders d as "N days, H:MM:SS", dropping the day part when
// it is zero and using "1 day" for exactly one.
func FormatDuration(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	rem := total % 86400
	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, rem%3600/60, rem%60)

	var out string
	switch days {
	case 0:
		out = clock
	case 1:
		out = "1 day, " + clock
	default:
		out = strconv.FormatInt(days, 10) + " days, " + clock
	}
	if neg {
		return "-" + out
	}
	return out
}
