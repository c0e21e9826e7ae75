package alerting

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
	"github.com/LeonardoBeccarini/citywatch/pkg/dedup"
)

// Deduper decides whether an alert message may fire. ShouldProcess marks
// the message as seen when it returns true.
type Deduper interface {
	ShouldProcess(id string) bool
}

// Evaluator applies a rule table to readings. An alert message fires at
// most once for the lifetime of the Deduper: a condition that clears and
// comes back does not fire again.
type Evaluator struct {
	rules []Rule
	dedup Deduper
	now   func() time.Time
	newID func() string
}

// NewEvaluator copies rules. A nil deduper remembers messages in memory
// for the life of the process.
func NewEvaluator(rules []Rule, d Deduper) *Evaluator {
	if d == nil {
		d = dedup.NewPermanent()
	}
	return &Evaluator{
		rules: append([]Rule(nil), rules...),
		dedup: d,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (e *Evaluator) Rules() []Rule { return append([]Rule(nil), e.rules...) }

// Evaluate yields the new alerts for r, in rule order. The sequence is
// lazy: a rule is checked and its message marked as seen only when the
// consumer asks for the next alert.
func (e *Evaluator) Evaluate(r messages.Reading) iter.Seq[messages.Alert] {
	return func(yield func(messages.Alert) bool) {
		subject := r.Subject()
		for _, rule := range e.rules {
			v, ok := rule.Matches(r)
			if !ok {
				continue
			}
			text := rule.Render(subject, v)
			if !e.dedup.ShouldProcess(text) {
				continue
			}
			a := messages.Alert{
				ID:              e.newID(),
				Rule:            rule.Name,
				Message:         text,
				Severity:        rule.Severity,
				SubjectLocation: r.LocationName,
				SubjectEntity:   r.EntityID,
				Metric:          rule.Metric,
				Value:           v,
				Threshold:       rule.Threshold,
				FiredAt:         e.now(),
			}
			if !yield(a) {
				return
			}
		}
	}
}
