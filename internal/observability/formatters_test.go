package observability

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/longform-writer/internal/types"
)

func TestPrintKeywords(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintKeywords(&types.SeparatedKeywords{
		ConclusionKeywords: []string{"burr grinder"},
		TrafficKeywords:    []string{"coffee grinder", "espresso"},
		SearchQueries:      []string{"best burr grinder", "grinder for espresso"},
	})
	out := buf.String()

	assert.Contains(t, out, "KEYWORDS")
	assert.Contains(t, out, "burr grinder")
	assert.Contains(t, out, "coffee grinder, espresso")
	assert.Contains(t, out, "• grinder for espresso")
}

func TestPrintCompetitors_LimitsAndFlagsSimulated(t *testing.T) {
	var samples []types.CompetitorAnalysis
	for i := 0; i < 7; i++ {
		samples = append(samples, types.CompetitorAnalysis{Title: "Sample", CharCount: 4000, Simulated: i == 0})
	}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintCompetitors(samples)
	out := buf.String()

	assert.Contains(t, out, "Samples: 7 (1 simulated)")
	assert.Contains(t, out, "[simulated]")
	assert.Contains(t, out, "... and 2 more samples")
}

func TestPrintQuality(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintQuality(&types.QualityReport{
		Passed:        false,
		WordCount:     3100,
		H2Count:       4,
		KeywordCounts: []types.KeywordCount{{Keyword: "grinder", Count: 3, Target: 8}},
		Issues:        []string{"length 3100 is below 90% of the estimate 5000"},
	})
	out := buf.String()

	assert.Contains(t, out, "✗ FAILED")
	assert.Contains(t, out, "grinder: 3/8")
	assert.Contains(t, out, "below 90%")
}

func TestPrintArtifacts_SkipsMissing(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintArtifacts(&types.Job{Criteria: &types.Criteria{TargetLength: 5000, H2Count: 5}})
	out := buf.String()

	assert.Contains(t, out, "CRITERIA")
	assert.NotContains(t, out, "KEYWORDS")
	assert.NotContains(t, out, "QUALITY")

	buf.Reset()
	NewPrinter(&buf).PrintArtifacts(nil)
	assert.Empty(t, buf.String())
}

func TestPrintBox_KeepsWidthForMultibyteText(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).printBox("T", strings.Repeat("睡眠", 60))

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, boxWidth, utf8.RuneCountInString(line), line)
	}
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcde...", clip("abcdefghijk", 8))
}
