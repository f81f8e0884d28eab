package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// PasetoVerifier verifies PASETO v4.public access tokens issued by the
// account service. Verification only needs the Ed25519 public key, so this
// component never holds signing material.
type PasetoVerifier struct {
	issuer    string
	clockSkew time.Duration
	public    paseto.V4AsymmetricPublicKey
}

// NewPasetoVerifier builds a Verifier from the issuer's hex-encoded public key.
func NewPasetoVerifier(publicKeyHex, issuer string, clockSkew time.Duration) (*PasetoVerifier, error) {
	publicKeyHex = strings.TrimSpace(publicKeyHex)
	if publicKeyHex == "" {
		return nil, errors.New("identity: empty public key")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("identity: empty issuer")
	}
	if clockSkew < 0 {
		clockSkew = 0
	}

	pub, err := paseto.NewV4AsymmetricPublicKeyFromHex(publicKeyHex)
	if err != nil {
		return nil, err
	}

	return &PasetoVerifier{issuer: issuer, clockSkew: clockSkew, public: pub}, nil
}

// Resolve verifies the token and extracts the "uid" claim.
func (v *PasetoVerifier) Resolve(_ context.Context, credential string, now time.Time) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrAuthentication
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Clock-skew tolerance: validate slightly in the future so "nbf" does not
	// fail when clocks differ. This makes expiration slightly stricter too.
	validNow := now.Add(v.clockSkew)

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(v.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(v.public, credential, nil)
	if err != nil {
		return "", ErrAuthentication
	}

	uid, err := parsed.GetString("uid")
	if err != nil || strings.TrimSpace(uid) == "" {
		return "", ErrAuthentication
	}
	return uid, nil
}
