package types

// AudiencePersona describes the reader the document is written for. SurfaceNeed and
// LatentNeed are the unmet needs used as narrative hooks.
type AudiencePersona struct {
	Name        string   `json:"name"`
	Age         int      `json:"age"`
	Occupation  string   `json:"occupation"`
	Background  string   `json:"background"`
	Goals       []string `json:"goals"`
	Frustration string   `json:"frustration"`
	SurfaceNeed string   `json:"surfaceNeed"`
	LatentNeed  string   `json:"latentNeed"`
}

// VoicePersona describes a writing or editing voice.
type VoicePersona struct {
	Name       string   `json:"name"`
	Tone       string   `json:"tone"`
	StyleRules []string `json:"styleRules"`
	Taboos     []string `json:"taboos,omitempty"`
	// Source is "retrieved" when built from tagged exemplars, "builtin" otherwise.
	Source string `json:"source"`
}

// Persona sources.
const (
	PersonaRetrieved = "retrieved"
	PersonaBuiltin   = "builtin"
)

// PersonaBundle is generated once per job and reused by every later step.
type PersonaBundle struct {
	Audience AudiencePersona `json:"audience"`
	Author   VoicePersona    `json:"author"`
	Editor   VoicePersona    `json:"editor"`
}
