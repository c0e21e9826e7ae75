package alerting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/LeonardoBeccarini/citywatch/internal/model/messages"
)

type Comparison string

const (
	GTE Comparison = ">="
	GT  Comparison = ">"
	LTE Comparison = "<="
	LT  Comparison = "<"
	EQ  Comparison = "=="
)

func (c Comparison) Valid() bool {
	switch c {
	case GTE, GT, LTE, LT, EQ:
		return true
	}
	return false
}

// Rule is one threshold predicate with its alert template.
// Templates may use {subject}, {metric}, {threshold} and {value}.
type Rule struct {
	Name       string            `mapstructure:"name" json:"name"`
	Metric     string            `mapstructure:"metric" json:"metric"`
	Comparison Comparison        `mapstructure:"comparison" json:"comparison"`
	Threshold  float64           `mapstructure:"threshold" json:"threshold"`
	Severity   messages.Severity `mapstructure:"severity" json:"severity"`
	Template   string            `mapstructure:"template" json:"template"`
}

// Matches reports whether the reading carries the metric and it satisfies
// the comparison. Missing or non-finite metrics never match.
func (r Rule) Matches(reading messages.Reading) (float64, bool) {
	v, ok := reading.Metric(r.Metric)
	if !ok {
		return 0, false
	}
	switch r.Comparison {
	case GTE:
		return v, v >= r.Threshold
	case GT:
		return v, v > r.Threshold
	case LTE:
		return v, v <= r.Threshold
	case LT:
		return v, v < r.Threshold
	case EQ:
		return v, v == r.Threshold
	}
	return v, false
}

func formatNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Render substitutes the placeholders of the template.
func (r Rule) Render(subject string, value float64) string {
	return strings.NewReplacer(
		"{subject}", subject,
		"{metric}", r.Metric,
		"{threshold}", formatNum(r.Threshold),
		"{value}", formatNum(value),
	).Replace(r.Template)
}

func (r Rule) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("missing name"))
	}
	if r.Metric == "" {
		errs = append(errs, errors.New("missing metric"))
	}
	if !r.Comparison.Valid() {
		errs = append(errs, fmt.Errorf("unknown comparison %q", r.Comparison))
	}
	if !r.Severity.Valid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", r.Severity))
	}
	if strings.TrimSpace(r.Template) == "" {
		errs = append(errs, errors.New("empty template"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return nil
}

// DefaultRules is the built-in rule table: weather thresholds, bin
// telemetry and zone flood levels (hazard_rank comes from Zone.AsReading).
func DefaultRules() []Rule {
	return []Rule{
		{Name: "wind", Metric: "wind_mph", Comparison: GTE, Threshold: 15, Severity: messages.SeverityWarning,
			Template: "High winds in {subject}"},
		{Name: "precipitation", Metric: "precip_mm", Comparison: GTE, Threshold: 10, Severity: messages.SeverityWarning,
			Template: "Heavy rain in {subject}"},
		{Name: "heat", Metric: "temp_c", Comparison: GTE, Threshold: 40, Severity: messages.SeverityCritical,
			Template: "Extreme heat in {subject}"},
		{Name: "cold", Metric: "temp_c", Comparison: LTE, Threshold: 5, Severity: messages.SeverityWarning,
			Template: "Unusually cold in {subject}"},
		{Name: "low_pressure", Metric: "pressure_mb", Comparison: LT, Threshold: 980, Severity: messages.SeverityWarning,
			Template: "Low pressure system over {subject}"},
		{Name: "humidity", Metric: "humidity", Comparison: GTE, Threshold: 90, Severity: messages.SeverityInfo,
			Template: "Very high humidity in {subject}"},
		{Name: "bin_full", Metric: "fill_level", Comparison: GTE, Threshold: 90, Severity: messages.SeverityWarning,
			Template: "{subject} is full"},
		{Name: "low_battery", Metric: "battery", Comparison: LTE, Threshold: 15, Severity: messages.SeverityInfo,
			Template: "Low battery on {subject}"},
		{Name: "flood_watch", Metric: "hazard_rank", Comparison: EQ, Threshold: 1, Severity: messages.SeverityWarning,
			Template: "Flood watch: {subject}"},
		{Name: "flood_warning", Metric: "hazard_rank", Comparison: GTE, Threshold: 2, Severity: messages.SeverityCritical,
			Template: "FLOOD WARNING: {subject}"},
	}
}

// LoadRules reads a rule table from a YAML/JSON/TOML file:
//
//	rules:
//	  - name: wind
//	    metric: wind_mph
//	    comparison: ">="
//	    threshold: 15
//	    severity: warning
//	    template: "High winds in {subject}"
//
// An empty path returns DefaultRules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var cfg struct {
		Rules []Rule `mapstructure:"rules"`
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode rules %s: %w", path, err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("rules %s: no rules defined", path)
	}
	seen := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rules %s: %w", path, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rules %s: duplicate rule %q", path, r.Name)
		}
		seen[r.Name] = true
	}
	return cfg.Rules, nil
}
