package authflow

import (
	"net/url"
	"strconv"

	"github.com/tbourn/facecloud/internal/identity"
)

// Params is what a link carries.
type Params struct {
	TokenHash  string
	Type       identity.TokenType
	Code       string
	RedirectTo string
	Onboard    bool
}

// HasToken reports whether Params can be exchanged.
func (p Params) HasToken() bool {
	return p.Code != "" || (p.TokenHash != "" && p.Type != "")
}

// scrubbed parameters never survive into a cleaned URL.
var scrubbed = []string{"token_hash", "token", "type", "code", "access_token", "refresh_token"}

// redirectKeys name the landing-path parameter, most preferred first.
var redirectKeys = []string{"redirectTo", "redirect_to", "next"}

// ParseURL reads link parameters from u's query string. The fragment is
// consulted only when the query carries no token, for links from clients
// that put parameters after '#'. "token" is accepted as an alias of
// "token_hash", and "redirect_to" or "next" as aliases of "redirectTo".
func ParseURL(u *url.URL) Params {
	p := fromValues(u.Query())
	if p.HasToken() || u.Fragment == "" {
		return p
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return p
	}
	fp := fromValues(frag)
	if fp.RedirectTo == "" {
		fp.RedirectTo = p.RedirectTo
	}
	fp.Onboard = fp.Onboard || p.Onboard
	return fp
}

func fromValues(q url.Values) Params {
	p := Params{
		TokenHash:  q.Get("token_hash"),
		Type:       identity.TokenType(q.Get("type")),
		Code:       q.Get("code"),
	}
	if p.TokenHash == "" {
		p.TokenHash = q.Get("token")
	}
	for _, k := range redirectKeys {
		if p.RedirectTo = q.Get(k); p.RedirectTo != "" {
			break
		}
	}
	if v := q.Get("onboard"); v != "" {
		p.Onboard, _ = strconv.ParseBool(v)
	}
	return p
}

// Scrub returns a copy of u with token-bearing parameters and the fragment
// removed.
func Scrub(u *url.URL) *url.URL {
	if u == nil {
		return &url.URL{}
	}
	out := *u
	q := out.Query()
	for _, k := range scrubbed {
		q.Del(k)
	}
	out.RawQuery = q.Encode()
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}
