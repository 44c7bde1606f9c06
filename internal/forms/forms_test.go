package forms

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/facecloud/internal/workflow"
)

func bondi() map[string]any {
	return map[string]any{
		"name":     "Bondi Clinic",
		"email":    "bondi@example.com",
		"phone":    "+61 2 9000 0000",
		"address":  "1 Beach Rd",
		"suburb":   "Bondi",
		"state":    "NSW",
		"postcode": "2026",
		"hours": []Day{
			{Weekday: time.Monday, Open: true, OpensAt: "09:00", ClosesAt: "17:00"},
		},
	}
}

func TestEmbeddedSchemas_Compile(t *testing.T) {
	all, err := Schemas()
	require.NoError(t, err)
	for _, kind := range []string{WizardClinic, WizardStaff, WizardRoom} {
		assert.Contains(t, all, kind)
	}

	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)
	ids := make([]string, len(clinic.Steps))
	for i, s := range clinic.Steps {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"details", "address", "hours", "branding", "review"}, ids)
	assert.Equal(t, []string{"logo"}, clinic.BinaryFields())

	_, err = Lookup("payroll")
	require.ErrorIs(t, err, ErrUnknownWizard)
}

func TestParse_RejectsBadSchemas(t *testing.T) {
	cases := map[string]string{
		"unknown rule":      "wizard: x\nsteps:\n  - id: a\n    fields:\n      - name: f\n        rules:\n          - kind: telepathy\n",
		"unknown predicate": "wizard: x\nsteps:\n  - id: a\n    skip_when: full_moon\n",
		"duplicate step":    "wizard: x\nsteps:\n  - id: a\n  - id: a\n",
		"bad pattern":       "wizard: x\nsteps:\n  - id: a\n    fields:\n      - name: f\n        rules:\n          - kind: pattern\n            pattern: '('\n",
		"no steps":          "wizard: x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestRuleCheck(t *testing.T) {
	compiled := func(r Rule) *Rule {
		require.NoError(t, r.compile())
		return &r
	}
	tests := []struct {
		name string
		rule *Rule
		val  any
		ok   bool
	}{
		{"required blank", compiled(Rule{Kind: RuleRequired}), "  ", false},
		{"required set", compiled(Rule{Kind: RuleRequired}), "x", true},
		{"email ok", compiled(Rule{Kind: RuleEmail}), "bondi@example.com", true},
		{"email no tld", compiled(Rule{Kind: RuleEmail}), "bondi@example", false},
		{"email display name", compiled(Rule{Kind: RuleEmail}), "Bondi <bondi@example.com>", false},
		{"phone landline", compiled(Rule{Kind: RulePhoneAU}), "+61 2 9000 0000", true},
		{"phone mobile", compiled(Rule{Kind: RulePhoneAU}), "0412 345 678", true},
		{"phone short", compiled(Rule{Kind: RulePhoneAU}), "9000 0000", false},
		{"postcode", compiled(Rule{Kind: RulePostcodeAU}), "2026", true},
		{"postcode letters", compiled(Rule{Kind: RulePostcodeAU}), "20A6", false},
		{"state lower", compiled(Rule{Kind: RuleStateAU}), "vic", true},
		{"state unknown", compiled(Rule{Kind: RuleStateAU}), "CAL", false},
		{"one_of", compiled(Rule{Kind: RuleOneOf, Options: []string{"a", "b"}}), "c", false},
		{"min_len", compiled(Rule{Kind: RuleMinLen, Value: 3}), "ab", false},
		{"max_len runes", compiled(Rule{Kind: RuleMaxLen, Value: 3}), "été", true},
		{"min json number", compiled(Rule{Kind: RuleMin, Value: 1}), float64(0), false},
		{"min string", compiled(Rule{Kind: RuleMin, Value: 1}), "2", true},
		{"optional empty passes", compiled(Rule{Kind: RuleEmail}), "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.rule.Check(tc.val)
			assert.Equal(t, tc.ok, msg == "", "message: %q", msg)
		})
	}
}

func TestValidateStep_NoOpenDay(t *testing.T) {
	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)

	fields := bondi()
	fields["hours"] = []Day{{Weekday: time.Monday}, {Weekday: time.Tuesday}}
	err = clinic.ValidateStep("hours", State{Fields: fields})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "hours", ve.Step)
	assert.Equal(t, MsgNoOpenDay, ve.Fields["hours"])

	delete(fields, "hours")
	err = clinic.ValidateStep("hours", State{Fields: fields})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, MsgNoOpenDay, ve.Fields["hours"])
}

func TestValidateStep_HoursRange(t *testing.T) {
	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)

	// JSON shape as posted by a client.
	var hours any
	require.NoError(t, json.Unmarshal([]byte(`[{"weekday":1,"open":true,"opens_at":"17:00","closes_at":"09:00"}]`), &hours))
	err = clinic.ValidateStep("hours", State{Fields: map[string]any{"hours": hours}})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields["hours"], "before closing")
}

func TestValidateStep_UnknownStep(t *testing.T) {
	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)
	require.ErrorIs(t, clinic.ValidateStep("payment", State{}), workflow.ErrInvalidStep)
}

func TestValidateAll_BondiClinic(t *testing.T) {
	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)
	require.NoError(t, clinic.ValidateAll(State{Fields: bondi()}))

	fields := bondi()
	fields["postcode"] = "20"
	err = clinic.ValidateAll(State{Fields: fields})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "address", ve.Step)
	assert.Contains(t, ve.Fields, "postcode")
}

func TestClinicSequencer_AdvanceRefusedWithoutOpenDay(t *testing.T) {
	clinic, err := Lookup(WizardClinic)
	require.NoError(t, err)

	fields := bondi()
	fields["hours"] = []Day{{Weekday: time.Monday}}
	seq, err := clinic.Sequencer(func() State { return State{Fields: fields} })
	require.NoError(t, err)
	require.NoError(t, seq.JumpTo("hours"))

	got, err := seq.Advance()
	require.Error(t, err)
	assert.Equal(t, workflow.StepID("hours"), got)
	assert.Contains(t, err.Error(), MsgNoOpenDay)
}

func TestStaffSequencer_SkipsClinicStepForSingleClinic(t *testing.T) {
	staff, err := Lookup(WizardStaff)
	require.NoError(t, err)

	state := State{
		Fields: map[string]any{
			"first_name": "Ava", "last_name": "Ng", "email": "ava@example.com",
			"role": "nurse", "ahpra_number": "NMW0001234567",
		},
		Facts: Facts{ClinicIDs: []string{"c1"}},
	}
	seq, err := staff.Sequencer(func() State { return state })
	require.NoError(t, err)

	_, err = seq.Advance()
	require.NoError(t, err)
	got, err := seq.Advance()
	require.NoError(t, err)
	assert.Equal(t, workflow.StepID("review"), got)
	assert.True(t, staff.Skipped("clinic", state))
	require.NoError(t, staff.ValidateAll(state), "hidden clinic step must not block submit")

	state.Facts.ClinicIDs = []string{"c1", "c2"}
	assert.False(t, staff.Skipped("clinic", state))
	var ve *ValidationError
	require.True(t, errors.As(staff.ValidateAll(state), &ve))
	assert.Equal(t, "clinic", ve.Step)
}

func TestParseHours(t *testing.T) {
	days, err := ParseHours([]any{map[string]any{"weekday": float64(6), "open": false}})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, time.Saturday, days[0].Weekday)

	_, err = ParseHours([]Day{{Weekday: 1}, {Weekday: 1}})
	require.Error(t, err)
	_, err = ParseHours([]Day{{Weekday: 9}})
	require.Error(t, err)
	_, err = ParseHours("monday")
	require.Error(t, err)

	def := DefaultHours()
	require.Len(t, def, 7)
	assert.False(t, def[0].Open)
	assert.True(t, def[1].Open)
}
