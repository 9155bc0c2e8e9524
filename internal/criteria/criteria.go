// Package criteria derives the quantitative acceptance targets of a job from its
// competitor samples. It performs no I/O.
package criteria

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/jonathan/longform-writer/internal/types"
)

// ErrNoSamples is returned when there is nothing to derive criteria from.
var ErrNoSamples = errors.New("no competitor samples")

// Constants of the calculation.
const (
	DefaultTargetLength = 5000
	// LengthMargin is added to the longest competitor so the target exceeds every sample.
	LengthMargin = 500

	H2BlockChars = 3000
	MinH2Count   = 5
	H3BlockChars = 1000
	MinH3Count   = 15

	// KeywordMultiplier is applied to the highest observed count. The result may be
	// unreachable; the quality report then records the shortfall.
	KeywordMultiplier = 2.0
	KeywordFloor      = 5
	TermFloor         = 3
)

// Input is everything the calculator needs.
type Input struct {
	Samples          []types.CompetitorAnalysis
	UserTargetLength int
	// KeywordOrder lists keywords to put first, in this order. Other observed
	// keywords follow alphabetically.
	KeywordOrder []string
}

// Calculate computes the Criteria for in.
func Calculate(in Input) (*types.Criteria, error) {
	if len(in.Samples) == 0 {
		return nil, ErrNoSamples
	}

	user := in.UserTargetLength
	if user <= 0 {
		user = DefaultTargetLength
	}

	maxLen := 0
	for _, s := range in.Samples {
		if s.CharCount > maxLen {
			maxLen = s.CharCount
		}
	}
	target := max(user, maxLen+LengthMargin)

	return &types.Criteria{
		TargetLength: target,
		H2Count:      SectionCount(target, H2BlockChars, MinH2Count),
		H3Count:      SectionCount(target, H3BlockChars, MinH3Count),
		Keywords:     terms(in.Samples, func(s types.CompetitorAnalysis) map[string]int { return s.KeywordCounts }, KeywordFloor, in.KeywordOrder),
		Synonyms:     terms(in.Samples, func(s types.CompetitorAnalysis) map[string]int { return s.SynonymCounts }, TermFloor, nil),
		RelatedTerms: terms(in.Samples, func(s types.CompetitorAnalysis) map[string]int { return s.RelatedCounts }, TermFloor, nil),
	}, nil
}

// SectionCount scales a heading count with length: one per block, never below floor.
func SectionCount(length, block, floor int) int {
	n := int(math.Ceil(float64(length) / float64(block)))
	return max(n, floor)
}

// MinOccurrences is max(ceil(2 x highest observed), floor).
func MinOccurrences(highest, floor int) int {
	return max(int(math.Ceil(KeywordMultiplier*float64(highest))), floor)
}

func terms(samples []types.CompetitorAnalysis, counts func(types.CompetitorAnalysis) map[string]int, floor int, order []string) []types.TermTarget {
	highest := make(map[string]int)
	for _, s := range samples {
		for term, n := range counts(s) {
			if term == "" {
				continue
			}
			if cur, ok := highest[term]; !ok || n > cur {
				highest[term] = n
			}
		}
	}
	if len(highest) == 0 {
		return nil
	}

	out := make([]types.TermTarget, 0, len(highest))
	done := make(map[string]bool, len(highest))
	for _, term := range order {
		n, ok := highest[term]
		if !ok || done[term] {
			continue
		}
		done[term] = true
		out = append(out, types.TermTarget{Term: term, MinCount: MinOccurrences(n, floor)})
	}

	rest := make([]string, 0, len(highest)-len(done))
	for term := range highest {
		if !done[term] {
			rest = append(rest, term)
		}
	}
	sort.Strings(rest)
	for _, term := range rest {
		out = append(out, types.TermTarget{Term: term, MinCount: MinOccurrences(highest[term], floor)})
	}
	return out
}
