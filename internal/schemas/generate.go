package schemas

import (
	"context"
	"fmt"

	"github.com/jonathan/longform-writer/internal/llm"
	schemafiles "github.com/jonathan/longform-writer/schemas"
)

// Generate asks client for JSON conforming to the embedded schema called name,
// validates the answer and decodes it into v.
func Generate(ctx context.Context, client llm.Client, messages []llm.Message, name string, tier llm.ModelTier, v any) error {
	schema, err := schemafiles.Get(name)
	if err != nil {
		return &SchemaLoadError{Path: name, Message: "not embedded", Cause: err}
	}
	raw, err := client.GenerateJSON(ctx, messages, schema, tier)
	if err != nil {
		return err
	}
	if err := Decode(name, raw, v); err != nil {
		return fmt.Errorf("model output for %s: %w", name, err)
	}
	return nil
}
