package research

// Limits applied to competitor pages.
const (
	// MinPageChars is the shortest extracted page worth analysing.
	MinPageChars = 500
	// MaxContentChars caps the page text handed to the model.
	MaxContentChars = 15000
	// ExcerptChars is the opening kept on each analysis for the context blob.
	ExcerptChars = 2000
	// MaxSearchQueries is the number of queries used per job.
	MaxSearchQueries = 3
	// DefaultResultsPerQuery is the number of search hits analysed per query.
	DefaultResultsPerQuery = 3
	// SimulatedCompetitors is the number of samples requested when nothing was retrievable.
	SimulatedCompetitors = 3
)

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
