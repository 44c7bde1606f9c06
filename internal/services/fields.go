package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/facecloud/internal/forms"
)

// DraftClearer removes a wizard draft once its submission is stored.
type DraftClearer interface {
	Clear(ctx context.Context, key string) error
}

// Invalidator drops cached dashboard metrics. Called without ids it drops
// everything.
type Invalidator interface {
	Invalidate(entityIDs ...string)
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalize trims whitespace and collapses multiple spaces to one.
func normalize(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// str reads a string field, normalized. Non-strings read as "".
func str(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return normalize(s)
}

// digits drops spaces, dashes and parentheses from phone numbers and ABNs.
func digits(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, s)
}

// prepareFields returns a copy of fields with the per-wizard input
// normalisation applied. Navigate and the submit services both validate the
// prepared copy so a step accepted by Advance is accepted on submission.
func prepareFields(kind string, fields map[string]any) map[string]any {
	out := cloneFields(fields)
	switch kind {
	case forms.WizardStaff:
		if v, ok := out["ahpra_number"].(string); ok {
			out["ahpra_number"] = strings.ToUpper(strings.Join(strings.Fields(v), ""))
		}
	}
	return out
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// decode re-marshals a loosely typed field into out.
func decode(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// clearDraft drops the submitted draft; failure only costs a stale draft
// that expires on its own.
func clearDraft(ctx context.Context, d DraftClearer, key string) {
	if d == nil || key == "" {
		return
	}
	if err := d.Clear(ctx, key); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("draft", key).Msg("draft clear failed")
	}
}

func invalidate(c Invalidator, ids ...string) {
	if c != nil {
		c.Invalidate(ids...)
	}
}
