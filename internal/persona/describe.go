package persona

import (
	"fmt"
	"strings"

	"github.com/jonathan/longform-writer/internal/types"
)

// DescribeAudience renders an audience persona for prompt inclusion.
func DescribeAudience(p types.AudiencePersona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", p.Name)
	if p.Age > 0 {
		fmt.Fprintf(&sb, ", %d", p.Age)
	}
	if p.Occupation != "" {
		fmt.Fprintf(&sb, ", %s", p.Occupation)
	}
	sb.WriteString("\n")
	if p.Background != "" {
		fmt.Fprintf(&sb, "Background: %s\n", p.Background)
	}
	if len(p.Goals) > 0 {
		fmt.Fprintf(&sb, "Goals: %s\n", strings.Join(p.Goals, "; "))
	}
	if p.Frustration != "" {
		fmt.Fprintf(&sb, "Frustration: %s\n", p.Frustration)
	}
	fmt.Fprintf(&sb, "Says they want: %s\n", p.SurfaceNeed)
	fmt.Fprintf(&sb, "Actually needs: %s", p.LatentNeed)
	return sb.String()
}

// DescribeVoice renders a voice persona for prompt inclusion.
func DescribeVoice(v types.VoicePersona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (tone: %s)\n", v.Name, v.Tone)
	for _, r := range v.StyleRules {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	if len(v.Taboos) > 0 {
		fmt.Fprintf(&sb, "Never: %s", strings.Join(v.Taboos, "; "))
	}
	return strings.TrimSpace(sb.String())
}
