// Package planner reads a normalized query into a structured Plan.
//
// Reading is done by a Capability. The language-model capability is optional;
// the heuristic capability always works offline and produces the same shape.
// Both outputs go through the same deterministic post-processing, so dates,
// upload scoping, risk flags and chart defaults never depend on which
// capability answered.
package planner

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// Request is everything a capability may look at.
type Request struct {
	Query         string // normalized query
	Resolution    *models.ResolutionResult
	Columns       []string
	ReferenceDate time.Time
	KnownTags     []string
}

// Capability turns a request into a raw plan.
type Capability interface {
	Name() string
	Plan(ctx context.Context, req Request) (models.Plan, error)
}
