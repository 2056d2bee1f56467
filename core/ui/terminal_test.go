package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTableAlignment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)

	tbl := w.NewTable("Metric", "Value").SetAlign(1, AlignRight)
	tbl.AddRow("Gross Sales", "50.00")
	tbl.AddRow("COGS", "5.00", "extra")
	tbl.Render()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "Metric      │ Value", lines[0])
	require.Equal(t, "────────────┼──────", lines[1])
	require.Equal(t, "Gross Sales │ 50.00", lines[2])
	require.Equal(t, "COGS        │  5.00", lines[3])
}

func TestRunSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)

	s := w.NewRunSummary()
	s.RunID = "r1"
	s.Records = 3
	s.Rows = 8
	s.Skipped = 1
	s.SpendFallback = 2
	s.Render()

	out := buf.String()
	require.Contains(t, out, "3 records → 8 rows")
	require.Contains(t, out, "Run ID:      r1")
	require.Contains(t, out, "1 records skipped")
	require.Contains(t, out, "2 records had no trade spend")
	require.NotContains(t, out, "rates outside")
}

func TestVerboseSummaryShowsStages(t *testing.T) {
	stages := []Stage{
		{Name: "ingest", Duration: 1500 * time.Microsecond},
		{Name: "calculate", Duration: 2 * time.Millisecond},
	}
	tests := []struct {
		name      string
		verbosity int
		want      bool
	}{
		{"normal", 1, false},
		{"verbose", 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, true)
			w.SetVerbosity(tt.verbosity)

			s := w.NewRunSummary()
			s.Stages = stages
			s.Render()

			out := buf.String()
			require.Contains(t, out, "records")
			if tt.want {
				require.Contains(t, out, "  ingest     1.5ms\n")
				require.Contains(t, out, "  calculate  2ms\n")
			} else {
				require.NotContains(t, out, "ingest")
			}
		})
	}
}

func TestQuietSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.SetVerbosity(0)
	w.NewRunSummary().Render()
	require.Empty(t, buf.String())
}

func TestColor(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, false).Error("boom")
	require.Equal(t, Red+"✗ "+Reset+"boom\n", buf.String())
}
