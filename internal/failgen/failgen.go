// Package failgen is the random failure generator engine: generator settings
// records, the failure association table, per-type trigger evaluators and the
// activator that turns a generator fire into failure activations.
package failgen

import (
	"context"
	"errors"

	"github.com/curbz/failure-niner/internal/failures"
)

// Store persists settings strings. A missing key is not an error.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Orchestrator is the failure catalogue and its activation primitive.
type Orchestrator interface {
	Failures() []failures.Failure
	ActiveCount() int
	ChangingCount() int
	Activate(ctx context.Context, id int) error
}

// Publisher mirrors settings and arming status to other processes.
type Publisher interface {
	PublishSettings(prefix, encoded string) error
	PublishArming(prefix string, armed []bool) error
}

// Rand is the injected random source for every probabilistic draw.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

var (
	ErrUnknownGenerator = errors.New("unknown generator type")
	ErrIndexOutOfRange  = errors.New("generator index out of range")
	ErrFieldOutOfRange  = errors.New("setting field out of range")
	ErrInvalidUniqueID  = errors.New("invalid generator unique id")
)

type nopPublisher struct{}

func (nopPublisher) PublishSettings(string, string) error { return nil }
func (nopPublisher) PublishArming(string, []bool) error   { return nil }

// NopPublisher is used when no mirror transport is configured.
var NopPublisher Publisher = nopPublisher{}
