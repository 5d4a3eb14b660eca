package deeplink

import "net/url"

// Params carries the credential fields a recovery link may supply. A zero
// Params means no credentials were found. Values are set once at extraction
// and never mutated afterwards.
type Params struct {
	Code         string
	AccessToken  string
	RefreshToken string
	Token        string
	TokenHash    string
}

// Parse extracts recovery credentials from rawURL, scanning the query and the
// fragment independently. PKCE codes and OTP hashes arrive in the query;
// implicit-flow token pairs arrive in the fragment, which structured
// navigation parameters cannot carry (fragments never reach a server, so
// reset emails put tokens there). The two segments are disjoint in practice,
// so fragment values simply win when both carry the same key.
//
// Unparsable input yields a zero Params rather than an error; the caller
// treats that as "no credentials found".
func Parse(rawURL string) Params {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Params{}
	}
	var p Params
	p.apply(u.Query())
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		p.apply(frag)
	}
	return p
}

func (p *Params) apply(values url.Values) {
	if v := values.Get("code"); v != "" {
		p.Code = v
	}
	if v := values.Get("access_token"); v != "" {
		p.AccessToken = v
	}
	if v := values.Get("refresh_token"); v != "" {
		p.RefreshToken = v
	}
	if v := values.Get("token"); v != "" {
		p.Token = v
	}
	if v := values.Get("token_hash"); v != "" {
		p.TokenHash = v
	}
}

// HasCredentials reports whether p carries anything exchangeable for a
// session. A refresh token alone never qualifies; it only matters paired with
// an access token.
func (p Params) HasCredentials() bool {
	return p.Code != "" || p.AccessToken != "" || p.Token != "" || p.TokenHash != ""
}
