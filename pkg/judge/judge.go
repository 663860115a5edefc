// Package judge provides the LLM judge used by format detection and
// quality analysis: an OpenAI-compatible chat completions client with
// weighted credential rotation, rate-limit backoff, and schema-constrained
// JSON answers.
package judge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/qxlabai/datapipe/pkg/chat"
)

// ErrFiltered reports that the provider refused to answer because the
// prompt or the completion tripped its content filter. Callers treat it
// as "no answer", not as a failure worth retrying.
var ErrFiltered = errors.New("judge: response was filtered")

// Request is one judge call.
type Request struct {
	Messages []chat.Message

	// Temperature overrides the sampling temperature. Nil keeps the
	// provider default.
	Temperature *float64

	// N asks for that many choices. Zero means one.
	N int

	// Schema constrains the answer to a JSON document.
	Schema *ResponseFormat

	// MaxAttempts overrides the client's retry budget for this call.
	// Nil keeps the client default; zero retries until the context is
	// done.
	MaxAttempts *int
}

// ResponseFormat names a JSON schema for structured output.
type ResponseFormat struct {
	Name   string
	Schema *jsonschema.Schema
}

// Completer is the judge surface the detection and analysis stages
// depend on. Complete returns the content of every requested choice.
type Completer interface {
	Complete(ctx context.Context, req Request) ([]string, error)
}

// Credential is one API endpoint and key. A $VAR key resolves from the
// environment. Weight biases rotation toward credentials with more
// quota and defaults to 1.
type Credential struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Weight  int    `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Pool hands out credential indices round-robin over a weight-expanded
// ring, so a credential with weight 3 serves three times as many calls.
// Next is safe for concurrent use.
type Pool struct {
	creds []Credential
	ring  []int
	next  atomic.Uint64
}

// NewPool builds a Pool. At least one credential is required.
func NewPool(creds []Credential) (*Pool, error) {
	if len(creds) == 0 {
		return nil, errors.New("judge: pool needs at least one credential")
	}
	p := &Pool{creds: creds}
	for i, c := range creds {
		if c.APIKey == "" {
			return nil, fmt.Errorf("judge: credential %d has no api key", i)
		}
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		for range w {
			p.ring = append(p.ring, i)
		}
	}
	return p, nil
}

// Next returns the index of the credential to use for the next call.
func (p *Pool) Next() int {
	n := p.next.Add(1) - 1
	return p.ring[n%uint64(len(p.ring))]
}

// Credentials returns the pooled credentials in construction order.
func (p *Pool) Credentials() []Credential { return p.creds }

// Float returns a pointer suitable for [Request.Temperature].
func Float(v float64) *float64 { return &v }

// Attempts returns a pointer suitable for [Request.MaxAttempts].
func Attempts(n int) *int { return &n }

var _ Completer = (*Client)(nil)
