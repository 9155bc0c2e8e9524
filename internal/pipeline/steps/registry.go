// Package steps defines the ordered steps of the job pipeline and the artifacts each
// one depends on.
package steps

import (
	"fmt"

	"github.com/jonathan/longform-writer/internal/types"
)

// Step numbers.
const (
	SeparateKeywords = iota + 1
	SearchQueries
	Competitors
	Criteria
	Audience
	Personas
	Structure
	Write
	Refine
	Export
)

// Total is the number of steps.
const Total = Export

// Artifact names used in dependency checks.
const (
	ArtifactKeywords    = "separated_keywords"
	ArtifactQueries     = "search_queries"
	ArtifactCompetitors = "competitor_analyses"
	ArtifactCriteria    = "criteria"
	ArtifactContext     = "context_blob"
	ArtifactPersonas    = "persona_bundle"
	ArtifactStructure   = "structure"
	ArtifactDocument    = "document"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Number int
	Name   string
	// Progress is the job progress once the step has finished.
	Progress     int
	Dependencies []string
}

// Registry lists every step in execution order.
var Registry = []StepDefinition{
	{Number: SeparateKeywords, Name: "separate keywords", Progress: 10},
	{Number: SearchQueries, Name: "search queries", Progress: 20, Dependencies: []string{ArtifactKeywords}},
	{Number: Competitors, Name: "competitor analysis", Progress: 40, Dependencies: []string{ArtifactQueries}},
	{Number: Criteria, Name: "criteria", Progress: 50, Dependencies: []string{ArtifactCompetitors}},
	{Number: Audience, Name: "audience research", Progress: 55, Dependencies: []string{ArtifactCompetitors}},
	{Number: Personas, Name: "personas", Progress: 60},
	{Number: Structure, Name: "structure", Progress: 70,
		Dependencies: []string{ArtifactKeywords, ArtifactCriteria, ArtifactContext, ArtifactPersonas}},
	{Number: Write, Name: "writing", Progress: 80,
		Dependencies: []string{ArtifactStructure, ArtifactCriteria, ArtifactPersonas}},
	{Number: Refine, Name: "refinement and quality", Progress: 90,
		Dependencies: []string{ArtifactDocument, ArtifactCriteria, ArtifactPersonas}},
	{Number: Export, Name: "export", Progress: 100, Dependencies: []string{ArtifactDocument, ArtifactKeywords}},
}

// Get returns the definition of step n.
func Get(n int) (StepDefinition, bool) {
	if n < 1 || n > len(Registry) {
		return StepDefinition{}, false
	}
	return Registry[n-1], true
}

// Name returns the name of step n, or "" if unknown.
func Name(n int) string {
	def, _ := Get(n)
	return def.Name
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                int
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %d (%s): missing dependencies: %v", e.Step, Name(e.Step), e.MissingDependencies)
}

// ValidateDependencies checks that job carries every artifact step n needs.
func ValidateDependencies(job *types.Job, n int) error {
	def, ok := Get(n)
	if !ok {
		return fmt.Errorf("unknown step: %d", n)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !has(job, dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Step: n, MissingDependencies: missing}
	}
	return nil
}

func has(job *types.Job, artifact string) bool {
	switch artifact {
	case ArtifactKeywords:
		return job.SeparatedKeywords != nil
	case ArtifactQueries:
		return job.SeparatedKeywords != nil && len(job.SeparatedKeywords.SearchQueries) > 0
	case ArtifactCompetitors:
		return len(job.CompetitorAnalyses) > 0
	case ArtifactCriteria:
		return job.Criteria != nil
	case ArtifactContext:
		return job.AudienceResearch != nil
	case ArtifactPersonas:
		return job.PersonaBundle != nil
	case ArtifactStructure:
		return job.Structure != nil
	case ArtifactDocument:
		return job.Document != ""
	}
	return false
}
