package service

import (
	"errors"

	"license-server/internal/signer"
	"license-server/internal/store"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid token")
	ErrNotFound     = store.ErrNotFound
	ErrDuplicateKey = store.ErrDuplicateKey
	ErrSigning      = signer.ErrSigning
)

// Kind names an error class at the boundary. The values are part of the
// response body and must stay stable.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInput"
	KindInvalidToken Kind = "InvalidToken"
	KindNotFound     Kind = "NotFound"
	KindDuplicateKey Kind = "DuplicateKeyError"
	KindSigning      Kind = "SigningError"
	KindInternal     Kind = "Internal"
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, ErrSigning):
		return KindSigning
	}
	return KindInternal
}
