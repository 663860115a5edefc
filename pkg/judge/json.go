package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Bounds for re-asking when the judge answers with JSON that cannot be
// decoded even after repair.
const (
	parseTries = 3
	parseDelay = 3 * time.Second
)

// ForType builds a ResponseFormat whose schema describes T, patched for
// strict structured output.
func ForType[T any](name string) (*ResponseFormat, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("judge: schema for %q: %w", name, err)
	}
	return &ResponseFormat{Name: name, Schema: schema}, nil
}

// CompleteJSON asks c for a schema-constrained answer and decodes the
// first choice into T. Almost-JSON answers are repaired before decoding;
// an answer that still cannot be decoded is asked again, up to three
// tries with a three second pause.
func CompleteJSON[T any](ctx context.Context, c Completer, req Request) (*T, error) {
	if req.Schema == nil {
		schema, err := ForType[T]("answer")
		if err != nil {
			return nil, err
		}
		req.Schema = schema
	}
	var lastErr error
	for try := 1; try <= parseTries; try++ {
		if try > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(parseDelay):
			}
		}
		choices, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(choices) == 0 {
			lastErr = fmt.Errorf("judge: empty answer")
			continue
		}
		out := new(T)
		if err := UnmarshalLenient([]byte(choices[0]), out); err != nil {
			lastErr = err
			slog.Warn("judge: could not decode answer", "try", try, "err", err)
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("judge: no decodable answer after %d tries: %w", parseTries, lastErr)
}

// UnmarshalLenient decodes JSON into v, repairing malformed input with
// jsonrepair when a plain decode fails with a syntax error.
func UnmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return fmt.Errorf("judge: repair answer: %w", rerr)
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// StrictSchema patches a schema for strict structured outputs: objects
// forbid unlisted properties, every property is required, and formerly
// optional properties become nullable. The input is cloned, not
// mutated.
func StrictSchema(s *jsonschema.Schema) any {
	if s == nil {
		return nil
	}
	return any(patchSchema(s.CloneSchemas()))
}

func patchSchema(m *jsonschema.Schema) *jsonschema.Schema {
	if m == nil {
		return nil
	}
	if m.Type != "" && len(m.Types) > 0 {
		m.Types = append(m.Types, m.Type)
		m.Type = ""
	}
	typ := m.Type
	if typ == "" {
		for _, t := range m.Types {
			if t != "null" && t != "" {
				typ = t
				break
			}
		}
	}
	switch typ {
	case "array":
		m.Items = patchSchema(m.Items)
	case "object":
		m.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		required := make(map[string]struct{})
		for _, v := range m.Required {
			required[v] = struct{}{}
		}
		for k, v := range m.Properties {
			if _, ok := required[k]; !ok {
				required[k] = struct{}{}
				if !slices.Contains(v.Types, "null") {
					v.Types = append(v.Types, "null")
				}
			}
			m.Properties[k] = patchSchema(v)
		}
		keys := make([]string, 0, len(required))
		for k := range required {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		m.Required = keys
	}
	return m
}
