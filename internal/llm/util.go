package llm

import "strings"

// CleanJSONBlock removes markdown code block wrappers and conversational
// preamble/trailer text from JSON responses.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	obj := strings.Index(text, "{")
	arr := strings.Index(text, "[")
	switch {
	case obj == 0:
		if out := extractJSONObject(text); out != "" {
			return out
		}
	case arr == 0:
		if out := extractJSONArray(text); out != "" {
			return out
		}
	case obj > 0 && (arr < 0 || obj < arr):
		if out := extractJSONObject(text[obj:]); out != "" {
			return out
		}
	case arr > 0:
		if out := extractJSONArray(text[arr:]); out != "" {
			return out
		}
	}
	return text
}

func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced returns the prefix of text that closes the bracket opened at
// position 0, honouring JSON string escapes. Empty when text does not start with open
// or never closes.
func extractBalanced(text string, open, closing byte) string {
	if len(text) == 0 || text[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}

// splitSystem joins all system messages into one instruction and returns the rest in order.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// flattenTurns renders a multi-turn conversation as one prompt for single-shot APIs.
// A single user turn is passed through unchanged.
func flattenTurns(turns []Message) string {
	if len(turns) == 1 {
		return turns[0].Content
	}
	var sb strings.Builder
	for i, m := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(strings.ToUpper(string(m.Role)))
		sb.WriteString("]\n")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// withSchemaInstruction appends the JSON contract to the conversation for providers
// that cannot take a schema natively.
func withSchemaInstruction(messages []Message, schema string) []Message {
	if strings.TrimSpace(schema) == "" {
		return messages
	}
	var sb strings.Builder
	sb.WriteString("Return ONLY valid JSON matching this JSON Schema:\n")
	sb.WriteString(schema)
	sb.WriteString("\n\nIMPORTANT:\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages...)
	return append(out, System(sb.String()))
}
