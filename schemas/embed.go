// Package schemas embeds the JSON Schemas that every structured model output is checked against.
package schemas

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.schema.json
var files embed.FS

// Schema names.
const (
	SeparatedKeywords    = "separated_keywords"
	SearchQueries        = "search_queries"
	CompetitorAnalysis   = "competitor_analysis"
	SimulatedCompetitors = "simulated_competitors"
	AudienceResearch     = "audience_research"
	AudiencePersona      = "audience_persona"
	VoicePersona         = "voice_persona"
	Estimates            = "estimates"
	FAQ                  = "faq"
	MetaInfo             = "meta_info"
)

// Get returns the raw schema document for name (without the .schema.json suffix).
func Get(name string) (string, error) {
	data, err := files.ReadFile(name + ".schema.json")
	if err != nil {
		return "", fmt.Errorf("schema %q not found: %w", name, err)
	}
	return string(data), nil
}

// MustGet is Get for schemas known at compile time.
func MustGet(name string) string {
	s, err := Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

// List returns all embedded schema names, sorted.
func List() []string {
	entries, _ := fs.Glob(files, "*.schema.json")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e, ".schema.json"))
	}
	sort.Strings(names)
	return names
}
