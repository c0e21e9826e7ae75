package messages

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Alert is an emitted notification. Message doubles as the dedup key.
type Alert struct {
	ID              string    `json:"id"`
	Rule            string    `json:"rule"`
	Message         string    `json:"message"`
	Severity        Severity  `json:"severity"`
	SubjectLocation string    `json:"subject_location,omitempty"`
	SubjectEntity   string    `json:"subject_entity,omitempty"`
	Metric          string    `json:"metric"`
	Value           float64   `json:"value"`
	Threshold       float64   `json:"threshold"`
	FiredAt         time.Time `json:"fired_at"`
}
