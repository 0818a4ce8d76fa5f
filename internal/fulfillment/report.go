package fulfillment

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/metrics"
)

// State is how far a background run got. Validation, allocation and the
// commit happen in the request path before a run starts at StatePersisted.
type State string

const (
	StatePersisted State = "persisted"
	StateEnriching State = "enriching"
	StateInvoicing State = "invoicing"
	StateNotifying State = "notifying"
	StateDone      State = "done"
)

// StepError is a failed fulfillment step. It is logged, never returned to a client.
type StepError struct {
	Step enums.FulfillmentStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("fulfillment step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one run. Steps that ran concurrently record into it
// under its lock.
type Report struct {
	OrderID string

	mu      sync.Mutex
	state   State
	results map[enums.FulfillmentStep]string
	err     error
}

func newReport(orderID string) *Report {
	return &Report{
		OrderID: orderID,
		state:   StatePersisted,
		results: make(map[enums.FulfillmentStep]string),
	}
}

func (r *Report) advance(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Report) record(step enums.FulfillmentStep, result string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[step] = result
	if err != nil {
		r.err = multierr.Append(r.err, &StepError{Step: step, Err: err})
	}
}

// State returns the last state reached.
func (r *Report) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the recorded outcome of step, or "" when it never ran.
func (r *Report) Result(step enums.FulfillmentStep) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[step]
}

// Results copies every recorded step outcome keyed by step name.
func (r *Report) Results() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.results))
	for step, result := range r.results {
		out[step.String()] = result
	}
	return out
}

// Err combines every step failure, nil when none failed.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// StepErrors splits Err into its individual step failures.
func (r *Report) StepErrors() []*StepError {
	var out []*StepError
	for _, err := range multierr.Errors(r.Err()) {
		if stepErr, ok := err.(*StepError); ok {
			out = append(out, stepErr)
		}
	}
	return out
}

// Failed reports whether step ran and failed.
func (r *Report) Failed(step enums.FulfillmentStep) bool {
	return r.Result(step) == metrics.ResultFailure
}
