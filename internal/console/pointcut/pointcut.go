// Package pointcut implements the pointcut list page: loading the pointcut
// configurations from the backend, local add and remove, and the reweave
// action that re-transforms instrumented classes.
package pointcut

import (
	"github.com/google/uuid"

	"go.agentconsole.tech/internal/backend"
)

// AdviceKindMetric is the advice kind given to locally added pointcuts
const AdviceKindMetric = "metric"

// Config is an opaque pointcut configuration record.
// Only adviceKind is read by the console.
type Config map[string]interface{}

// AdviceKind returns the adviceKind field, or "" when absent
func (c Config) AdviceKind() string {
	kind, _ := c["adviceKind"].(string)
	return kind
}

// Pointcut wraps one configuration record for display.
// ID is console-local and only used to reference the wrapper from a view.
type Pointcut struct {
	ID     uuid.UUID `json:"id"`
	Config Config    `json:"config"`
}

// Wrap creates a pointcut wrapper around a backend record without copying it
func Wrap(doc backend.Document) *Pointcut {
	return &Pointcut{
		ID:     uuid.New(),
		Config: Config(doc),
	}
}
