// Package token signs statements so they can be re-executed later without
// trusting client-supplied SQL.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// Salt separates query tokens from any other signature made with the same
// secret. It is both mixed into the key and carried as the audience claim.
const Salt = "querylens.sql-query"

var errEmptySecret = errors.New("signing secret must not be empty")

// queryClaims is the token payload. No time-based claims are set so that
// signing is deterministic for a given (secret, statement, params).
type queryClaims struct {
	Statement string     `json:"stmt"`
	Params    wireParams `json:"params"`
	jwt.RegisteredClaims
}

// Codec is an HMAC-SHA256 compact-JWS implementation of port.TokenCodec.
type Codec struct {
	key    []byte
	policy domain.ReadOnlyPolicy
	parser *jwt.Parser
}

// NewCodec derives the signing key from secret and Salt.
func NewCodec(secret []byte, policy domain.ReadOnlyPolicy) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(Salt))

	return &Codec{
		key:    mac.Sum(nil),
		policy: policy,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(Salt),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Sign returns ok=false when params are empty, the statement is not
// read-only, or a param has a type Verify could not restore exactly.
func (c *Codec) Sign(statement string, params domain.Params) (string, bool) {
	if !c.policy.Signable(statement, params) {
		return "", false
	}
	wire, err := encodeParams(params)
	if err != nil {
		return "", false
	}
	claims := queryClaims{
		Statement: statement,
		Params:    wire,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{Salt},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", false
	}
	return signed, true
}

// Verify opens a token. The read-only check is applied again because the
// signature only proves the bytes are unchanged, not that policy still allows them.
func (c *Codec) Verify(token string) (domain.Query, error) {
	var claims queryClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return domain.Query{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	params, err := decodeParams(claims.Params)
	if err != nil {
		return domain.Query{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	q := domain.Query{Statement: claims.Statement, Params: params}
	if err := c.policy.Validate(q.Statement); err != nil {
		return domain.Query{}, err
	}
	return q, nil
}
