package benchmark

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []RunResult {
	return []RunResult{
		{Scenario: "fresh_cold_start", Provider: "modal", GPU: "A100", Total: 12500 * time.Millisecond, TTFT: dur(300 * time.Millisecond)},
		{Scenario: "warm_cold_start", Provider: "modal", GPU: "A100", Total: 8 * time.Second, Error: "health endpoint never became ready (timeout 600s)"},
	}
}

func TestPrintSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleResults(), "json"))
	assert.Contains(t, buf.String(), `"scenario": "fresh_cold_start"`)
	assert.Contains(t, buf.String(), `"ttft_s": 0.3`)
}

func TestPrintSummary_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleResults(), "csv"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3) // header + 2 rows
	assert.Contains(t, lines[0], "scenario")
}

func TestPrintSummary_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sampleResults(), "table"))
	assert.Contains(t, buf.String(), "PROVIDER")
	assert.Contains(t, buf.String(), "modal")
}
