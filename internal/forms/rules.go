// Package forms evaluates wizard schemas: ordered steps of fields with
// validation rules expressed as data. Schemas are YAML documents embedded in
// the binary; rules are tagged variants interpreted by Rule.Check.
package forms

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RuleKind tags a validation rule.
type RuleKind string

const (
	RuleRequired   RuleKind = "required"
	RuleMinLen     RuleKind = "min_len"
	RuleMaxLen     RuleKind = "max_len"
	RulePattern    RuleKind = "pattern"
	RuleEmail      RuleKind = "email"
	RulePhoneAU    RuleKind = "phone_au"
	RulePostcodeAU RuleKind = "postcode_au"
	RuleStateAU    RuleKind = "state_au"
	RuleOneOf      RuleKind = "one_of"
	RuleOpenDays   RuleKind = "open_days"
	RuleHoursRange RuleKind = "hours_range"
	RuleMin        RuleKind = "min"
)

// MsgNoOpenDay is reported by open_days when every day is closed.
const MsgNoOpenDay = "At least one day must be open"

// Rule is one validation rule attached to a field. Only the parameters
// relevant to Kind are read.
type Rule struct {
	Kind    RuleKind `yaml:"kind" json:"kind"`
	Value   int      `yaml:"value,omitempty" json:"value,omitempty"`
	Pattern string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
	// Message overrides the default failure text.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	re *regexp.Regexp
}

var (
	phoneAURE    = regexp.MustCompile(`^(\+61|0)[2-478]\d{8}$`)
	postcodeAURE = regexp.MustCompile(`^\d{4}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

	australianStates = map[string]struct{}{
		"NSW": {}, "VIC": {}, "QLD": {}, "WA": {}, "SA": {}, "TAS": {}, "ACT": {}, "NT": {},
	}
)

// compile checks the rule parameters and prepares the pattern.
func (r *Rule) compile() error {
	switch r.Kind {
	case RuleRequired, RuleEmail, RulePhoneAU, RulePostcodeAU, RuleStateAU, RuleOpenDays, RuleHoursRange:
	case RuleMinLen, RuleMaxLen:
		if r.Value <= 0 {
			return fmt.Errorf("%s needs a positive value", r.Kind)
		}
	case RuleMin:
	case RulePattern:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
		r.re = re
	case RuleOneOf:
		if len(r.Options) == 0 {
			return fmt.Errorf("one_of needs options")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// Check evaluates the rule against v and returns a failure message, or ""
// when the value passes. Every rule except required and open_days accepts an
// empty value.
func (r *Rule) Check(v any) string {
	if r.Kind == RuleRequired {
		if isEmpty(v) {
			return r.msg("This field is required")
		}
		return ""
	}
	if isEmpty(v) {
		if r.Kind == RuleOpenDays {
			return r.msg(MsgNoOpenDay)
		}
		return ""
	}
	s, isString := v.(string)
	s = strings.TrimSpace(s)

	switch r.Kind {
	case RuleMinLen:
		if utf8.RuneCountInString(s) < r.Value {
			return r.msg(fmt.Sprintf("Must be at least %d characters", r.Value))
		}
	case RuleMaxLen:
		if utf8.RuneCountInString(s) > r.Value {
			return r.msg(fmt.Sprintf("Must be at most %d characters", r.Value))
		}
	case RulePattern:
		if !isString || !r.re.MatchString(s) {
			return r.msg("Invalid format")
		}
	case RuleEmail:
		if a, err := mail.ParseAddress(s); err != nil || a.Address != s || !strings.Contains(s[strings.LastIndex(s, "@"):], ".") {
			return r.msg("Enter a valid email address")
		}
	case RulePhoneAU:
		if !phoneAURE.MatchString(phoneStrip.Replace(s)) {
			return r.msg("Enter a valid Australian phone number")
		}
	case RulePostcodeAU:
		if !postcodeAURE.MatchString(s) {
			return r.msg("Postcode must be 4 digits")
		}
	case RuleStateAU:
		if _, ok := australianStates[strings.ToUpper(s)]; !ok {
			return r.msg("Select an Australian state or territory")
		}
	case RuleOneOf:
		for _, o := range r.Options {
			if s == o {
				return ""
			}
		}
		return r.msg("Select one of: " + strings.Join(r.Options, ", "))
	case RuleMin:
		n, ok := Int(v)
		if !ok || n < r.Value {
			return r.msg(fmt.Sprintf("Must be at least %d", r.Value))
		}
	case RuleOpenDays:
		days, err := ParseHours(v)
		if err != nil {
			return r.msg("Invalid operating hours")
		}
		for _, d := range days {
			if d.Open {
				return ""
			}
		}
		return r.msg(MsgNoOpenDay)
	case RuleHoursRange:
		days, err := ParseHours(v)
		if err != nil {
			return r.msg("Invalid operating hours")
		}
		for _, d := range days {
			if !d.Open {
				continue
			}
			if err := d.checkRange(); err != nil {
				return r.msg(err.Error())
			}
		}
	}
	return ""
}

func (r *Rule) msg(def string) string {
	if r.Message != "" {
		return r.Message
	}
	return def
}

// isEmpty treats nil, blank strings, and empty collections as absent.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case []Day:
		return len(t) == 0
	}
	return false
}

// Int coerces the numeric shapes produced by encoding/json and YAML, and
// decimal strings, to int.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
