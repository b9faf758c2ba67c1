package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bleremote/internal/domain"
)

type payloadSchema struct {
	method string
	schema *jsonschema.Schema
}

func compileSchema(method, raw string) (*payloadSchema, error) {
	if raw == "" {
		return nil, nil
	}
	url := method + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", method, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", method, err)
	}
	return &payloadSchema{method: method, schema: compiled}, nil
}

// validate checks a request payload. A missing payload is validated as {}.
func (p *payloadSchema) validate(payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("%w: %s: invalid JSON: %v", domain.ErrRPCInvalidPayload, p.method, err)
	}
	if err := p.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrRPCInvalidPayload, p.method, err)
	}
	return nil
}
