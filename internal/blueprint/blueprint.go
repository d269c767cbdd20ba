// Package blueprint serves the goal blueprint endpoint: it validates a
// goal/timeframe/style request, applies a per-client rate ceiling and
// passes the request to a text generator.
package blueprint

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned for missing or empty fields.
	ErrInvalidRequest = errors.New("goal, timeframe and style are required")

	// ErrRateLimited is returned once a client exceeds its ceiling.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
)

// Request is the body of POST /api/blueprint.
type Request struct {
	Goal      string `json:"goal"`
	Timeframe string `json:"timeframe"`
	Style     string `json:"style"`
}

// Validate trims the fields and rejects any that are empty.
func (r *Request) Validate() error {
	r.Goal = strings.TrimSpace(r.Goal)
	r.Timeframe = strings.TrimSpace(r.Timeframe)
	r.Style = strings.TrimSpace(r.Style)
	var missing []string
	if r.Goal == "" {
		missing = append(missing, "goal")
	}
	if r.Timeframe == "" {
		missing = append(missing, "timeframe")
	}
	if r.Style == "" {
		missing = append(missing, "style")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Generator turns a validated request into blueprint text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const promptTemplate = `
You are Destiny, an AI destiny architect.
Craft a personalized Destiny Blueprint for someone with the following inputs:

- Goal: %s
- Time commitment: %s
- Growth style: %s

Instructions:
1. Open with an inspiring message tailored to the user's mindset.
2. Break their journey into 3 progressive Milestones (titles + explanations).
3. Provide 5-7 actionable Micro-Steps for Milestone One.
4. End with a short, emotionally powerful Call to Action.
5. Make it motivating, visual, and practical.

Output format: Clean markdown-style bullets or numbered steps, no code blocks.

Be insightful. Speak directly to the user's future.
`

// Prompt renders the generation prompt for req.
func Prompt(req Request) string {
	return fmt.Sprintf(promptTemplate, req.Goal, req.Timeframe, req.Style)
}
