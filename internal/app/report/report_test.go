package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fundbridge/fundbridge/internal/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func closedTarget(id int64, name string, took time.Duration) domain.FundingTarget {
	closed := base.Add(took)
	return domain.FundingTarget{
		ID:          id,
		Name:        name,
		Description: name + " description",
		Investment: domain.Investment{
			FullAmount:     100,
			InvestedAmount: 100,
			FullyInvested:  true,
			CreatedAt:      base,
			ClosedAt:       &closed,
		},
	}
}

func sampleTargets() []domain.FundingTarget {
	open := domain.FundingTarget{
		ID: 4, Name: "Open", Description: "d",
		Investment: domain.Investment{FullAmount: 100, InvestedAmount: 10, CreatedAt: base},
	}
	return []domain.FundingTarget{
		closedTarget(1, "Slow", 50*time.Hour),
		closedTarget(2, "Fast", 90*time.Second),
		closedTarget(3, "AlsoFast", 90*time.Second),
		open,
	}
}

func names(r Report) []string {
	out := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Name
	}
	return out
}

func TestBuild_RanksFastestFirst(t *testing.T) {
	r := Build(base, sampleTargets(), 0)
	assert.Equal(t, []string{"Fast", "AlsoFast", "Slow"}, names(r))
	assert.Equal(t, 90.0, r.Rows[0].Seconds)
}

func TestBuild_Limit(t *testing.T) {
	r := Build(base, sampleTargets(), 2)
	assert.Equal(t, []string{"Fast", "AlsoFast"}, names(r))

	empty := Build(base, nil, 5)
	assert.Empty(t, empty.Rows)
}

type staticLister struct {
	targets []domain.FundingTarget
	err     error
}

func (s staticLister) ListFundingTargets(context.Context) ([]domain.FundingTarget, error) {
	return s.targets, s.err
}

func TestGenerator(t *testing.T) {
	gen := NewGenerator(staticLister{targets: sampleTargets()}, func() time.Time { return base })
	r, err := gen.Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, base, r.GeneratedAt)
	assert.Equal(t, []string{"Fast"}, names(r))

	boom := errors.New("boom")
	_, err = NewGenerator(staticLister{err: boom}, nil).Generate(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{90 * time.Second, "0:01:30"},
		{25*time.Hour + 4*time.Minute + 5*time.Second, "1 day, 1:04:05"},
		{51*time.Hour + 4*time.Minute + 5*time.Second, "2 days, 3:04:05"},
		{-time.Minute, "-0:01:00"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "YAML", " csv ", "table"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xlsx")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(base, sampleTargets(), 0), FormatJSON))

	var decoded struct {
		Projects []struct {
			Name    string  `json:"name"`
			Seconds float64 `json:"collection_time_seconds"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Projects, 3)
	assert.Equal(t, "Slow", decoded.Projects[2].Name)
	assert.Equal(t, float64(50*3600), decoded.Projects[2].Seconds)
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(base, sampleTargets(), 1), FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	projects, ok := decoded["projects"].([]any)
	require.True(t, ok)
	require.Len(t, projects, 1)
	assert.Equal(t, "Fast", projects[0].(map[string]any)["name"])
}

func TestRender_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(base, sampleTargets(), 0), FormatCSV))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, columns, records[2])
	assert.Equal(t, []string{"Slow", "2 days, 2:00:00", "Slow description"}, records[5])
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(base, sampleTargets(), 0), FormatTable))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Report generated 2025-03-01T12:00:00Z"))
	for _, want := range []string{"Collection time", "Fast", "0:01:30", "2 days, 2:00:00"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Open")
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, Report{}, Format("xml"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
