package port

import "github.com/guillermoBallester/querylens/internal/core/domain"

// TokenCodec signs (statement, params) pairs into opaque tokens and opens them again.
type TokenCodec interface {
	domain.Signer
	// Verify fails with domain.ErrInvalidToken or domain.ErrNotReadOnly.
	Verify(token string) (domain.Query, error)
}
