package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"profit-engine/internal/errors"
	"profit-engine/internal/metrics"
)

const (
	volumeCSV = "Year,Category,EAN Code,Channel,Customer Name,Units\n" +
		"2024,Soap,X1,C1,Acme,10\n" +
		"2024,Soap,X2,C2,Beta,4\n"
	pricingCSV = "Year,EAN,List Price,Std Cost\n" +
		"2024,X1,$5.00,$2.00\n" +
		"2024,X2,$10.00,$4.00\n"
	spendCSV = "Year,Channel,Type,Percentage\n" +
		"2024,C1,GTG,10\n" +
		"2024,C1,Agreement,5\n" +
		"2024,C1,Activity,5\n"
)

func writeInputs(t *testing.T, volume string) string {
	t.Helper()
	return writeFiles(t, volume, pricingCSV, spendCSV)
}

func writeFiles(t *testing.T, volume, pricing, spend string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"Vol_Actuals_2024_2025.csv": volume,
		"Pricing_Cost.csv":          pricing,
		"Trade_Spend.csv":           spend,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--no-color"}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRunWritesCSV(t *testing.T) {
	dir := writeInputs(t, volumeCSV)
	out := filepath.Join(t.TempDir(), "reports", "pnl.csv")

	stdout, _, err := execute(t, "run", "--input-dir", dir, "--out", out, "--quiet")
	require.NoError(t, err)
	require.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	records := readCSV(t, string(data))
	require.Len(t, records, 9)
	require.Equal(t, []string{"Year", "Category", "EAN", "ChannelClient", "Account", "Metric", "Value"}, records[0])

	var values []string
	for _, r := range records[1:] {
		values = append(values, r[2]+" "+r[5]+"="+r[6])
	}
	require.Equal(t, []string{
		"X1 Gross Sales=50.00",
		"X1 Net Shipment=45.00",
		"X1 Net Total Sales=40.00",
		"X1 Gross Profit=20.00",
		"X2 Gross Sales=40.00",
		"X2 Net Shipment=40.00",
		"X2 Net Total Sales=40.00",
		"X2 Gross Profit=24.00",
	}, values)
}

func TestRunChannelPricingWithGTG(t *testing.T) {
	dir := writeFiles(t,
		"Year,Category,EAN Code,Channel,Customer Name,Units\n"+
			"2024,Soap,X1,Retail,Acme,10\n"+
			"2024,Soap,X1,Online,Beta,10\n",
		"Year,EAN,Channel,List Price,Std Cost,GTG %\n"+
			"2024,X1,Retail,$5.00,$2.00,10%\n"+
			"2024,X1,Online,$4.00,$2.00,0%\n",
		"Year,Category,Channel,Type,Percentage\n"+
			"2024,Soap,Retail,Agreement,5%\n"+
			"2024,Soap,Retail,Activity,5%\n"+
			"2024,Soap,Online,Agreement,5%\n"+
			"2024,Soap,Online,Activity,5%\n")
	out := filepath.Join(t.TempDir(), "pnl.csv")

	_, _, err := execute(t, "run", "--input-dir", dir, "--out", out, "--quiet")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var values []string
	for _, r := range readCSV(t, string(data))[1:] {
		values = append(values, r[3]+" "+r[5]+"="+r[6])
	}
	require.Equal(t, []string{
		"Retail Gross Sales=50.00",
		"Retail Net Shipment=45.00",
		"Retail Net Total Sales=40.00",
		"Retail Gross Profit=20.00",
		"Online Gross Sales=40.00",
		"Online Net Shipment=40.00",
		"Online Net Total Sales=36.00",
		"Online Gross Profit=16.00",
	}, values)
}

func TestRunJSONToStdout(t *testing.T) {
	dir := writeInputs(t, volumeCSV)

	stdout, stderr, err := execute(t, "run", "--input-dir", dir, "--format", "json",
		"--metrics", "units,cogs", "--currency", "EUR", "--workers", "4")
	require.NoError(t, err)

	var doc struct {
		Currency string   `json:"currency"`
		Metrics  []string `json:"metrics"`
		Rows     []struct {
			Metric string `json:"metric"`
			Value  string `json:"value"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	require.Equal(t, "EUR", doc.Currency)
	require.Equal(t, []string{"Volume Units", "COGS"}, doc.Metrics)
	require.Len(t, doc.Rows, 4)
	require.Equal(t, "20.00", doc.Rows[1].Value)

	require.Contains(t, stderr, "2 records → 4 rows")
	require.Contains(t, stderr, "1 records had no trade spend")
}

func TestRunVerboseShowsStageTimings(t *testing.T) {
	dir := writeInputs(t, volumeCSV)
	out := filepath.Join(t.TempDir(), "pnl.csv")

	tests := []struct {
		name  string
		flags []string
		want  bool
	}{
		{"default", nil, false},
		{"verbose", []string{"--verbose"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--input-dir", dir, "--out", out}, tt.flags...)
			_, stderr, err := execute(t, args...)
			require.NoError(t, err)
			require.Contains(t, stderr, "2 records")
			for _, stage := range []string{"ingest", "calculate", "output"} {
				if tt.want {
					require.Contains(t, stderr, "  "+stage+" ")
				} else {
					require.NotContains(t, stderr, "  "+stage+" ")
				}
			}
		})
	}
}

func TestExecuteReportsErrorOnStderr(t *testing.T) {
	dir := writeInputs(t, volumeCSV)
	var stdout, stderr bytes.Buffer

	err := executeArgs([]string{
		"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--no-color",
		"run", "--input-dir", dir, "--format", "pdf",
	}, &stdout, &stderr)
	require.True(t, errors.IsType(err, errors.TypeConfig))
	require.Empty(t, stdout.String())
	require.True(t, strings.HasPrefix(stderr.String(), "✗ [CONFIG_ERROR] output.format"), stderr.String())
	require.Equal(t, 1, strings.Count(stderr.String(), "\n"))
}

func TestRunFailFastOnMissingPrice(t *testing.T) {
	dir := writeInputs(t, volumeCSV+"2024,Soap,X9,C1,Acme,1\n")
	out := filepath.Join(t.TempDir(), "pnl.csv")

	_, _, err := execute(t, "run", "--input-dir", dir, "--out", out)
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.TypeMissingPrice))
	require.Contains(t, err.Error(), "record 2")

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunSkipMode(t *testing.T) {
	dir := writeInputs(t, volumeCSV+"2024,Soap,X9,C1,Acme,1\n")

	stdout, stderr, err := execute(t, "run", "--input-dir", dir, "--mode", "skip")
	require.NoError(t, err)
	require.Len(t, readCSV(t, stdout), 9)
	require.Contains(t, stderr, "1 records skipped")
}

func TestRunRejectsBadOptions(t *testing.T) {
	dir := writeInputs(t, volumeCSV)

	for _, args := range [][]string{
		{"--format", "html"},
		{"--mode", "sometimes"},
		{"--duplicates", "first-wins"},
		{"--metrics", "gs,gs"},
	} {
		_, _, err := execute(t, append([]string{"run", "--input-dir", dir}, args...)...)
		require.Error(t, err, args)
		require.True(t, errors.IsType(err, errors.TypeConfig), args)
	}
}

func TestRunMissingInput(t *testing.T) {
	_, _, err := execute(t, "run", "--input-dir", t.TempDir())
	require.True(t, errors.IsType(err, errors.TypeInput))
}

func TestRunRecordsHistoryAndMetrics(t *testing.T) {
	dir := writeInputs(t, volumeCSV)
	work := t.TempDir()
	db := filepath.Join(work, "runs.db")
	prom := filepath.Join(work, "pnl.prom")

	first, _, err := execute(t, "run", "--input-dir", dir, "--sqlite", db, "--metrics-textfile", prom, "--quiet")
	require.NoError(t, err)
	_, _, err = execute(t, "run", "--input-dir", dir, "--sqlite", db, "--quiet")
	require.NoError(t, err)

	textfile, err := os.ReadFile(prom)
	require.NoError(t, err)
	require.Contains(t, string(textfile), metrics.RowsTotal+" 8")

	list, _, err := execute(t, "history", "list", "--sqlite", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(list), "\n")
	require.Len(t, lines, 4)

	shown, _, err := execute(t, "history", "show", "latest", "--sqlite", db, "--format", "csv")
	require.NoError(t, err)
	require.Equal(t, first, shown)

	ids := make([]string, 0, 2)
	for _, l := range lines[2:] {
		ids = append(ids, strings.TrimSpace(strings.Split(l, "│")[0]))
	}
	cmp, _, err := execute(t, "history", "compare", ids[1], ids[0], "--sqlite", db)
	require.NoError(t, err)
	require.Contains(t, cmp, "Gross Sales")
	require.Contains(t, cmp, "reports are identical")
}

func TestHistoryWithoutStore(t *testing.T) {
	_, _, err := execute(t, "history", "list")
	require.True(t, errors.IsType(err, errors.TypeInput))
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profit-engine.json")

	stdout, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	require.Contains(t, stdout, "wrote "+path)

	_, _, err = execute(t, "config", "init", path)
	require.True(t, errors.IsType(err, errors.TypeInput))

	t.Setenv("PROFIT_ENGINE_MODE", "skip")
	shown, _, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	require.Contains(t, shown, `"mode": "skip"`)
	require.Contains(t, shown, `"volume": "Vol_Actuals_2024_2025.csv"`)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "profit-engine version "+Version+"\n", stdout)
}
