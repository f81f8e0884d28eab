package identity

import (
	"context"
	"strings"
	"time"
)

// StaticVerifier maps fixed credentials to user IDs. Dev and test only.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier constructs a StaticVerifier from a token -> user ID map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			cp[k] = v
		}
	}
	return &StaticVerifier{tokens: cp}
}

// ParseStaticTokens parses a "token:user,token:user" spec (env var form).
func ParseStaticTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, uid, ok := strings.Cut(pair, ":")
		tok = strings.TrimSpace(tok)
		uid = strings.TrimSpace(uid)
		if ok && tok != "" && uid != "" {
			out[tok] = uid
		}
	}
	return out
}

// Resolve looks the credential up in the static table.
func (v *StaticVerifier) Resolve(_ context.Context, credential string, _ time.Time) (string, error) {
	uid, ok := v.tokens[strings.TrimSpace(credential)]
	if !ok {
		return "", ErrAuthentication
	}
	return uid, nil
}
