package progression

import (
	"errors"

	"github.com/google/uuid"
)

// Resolver maps a command payload to the id of the stream the command targets.
// Resolvers are pure and never block.
type Resolver[P any] func(payload P) (uuid.UUID, error)

var (
	errMissingStreamID = errors.New("payload carries no stream id")
	errEmptyCollection = errors.New("payload collection is empty")
	errMissingParentID = errors.New("first collection element carries no parent id")
)

// Direct resolves the stream id from an id carried by the payload itself.
// A nil id is rejected.
func Direct[P any](id func(payload P) uuid.UUID) Resolver[P] {
	return func(payload P) (uuid.UUID, error) {
		v := id(payload)
		if v == uuid.Nil {
			return uuid.Nil, errMissingStreamID
		}
		return v, nil
	}
}

// FirstOf resolves the stream id from the parent id of the first element of a
// collection carried by the payload.
//
// Every element is expected to share the same parent. Only the first one is
// read: the remaining elements are trusted, not validated.
func FirstOf[P, E any](items func(payload P) []E, parent func(item E) uuid.UUID) Resolver[P] {
	return func(payload P) (uuid.UUID, error) {
		list := items(payload)
		if len(list) == 0 {
			return uuid.Nil, errEmptyCollection
		}
		v := parent(list[0])
		if v == uuid.Nil {
			return uuid.Nil, errMissingParentID
		}
		return v, nil
	}
}

// Fresh mints a new stream id on every call. The payload is ignored; the id
// reaches the outside world only through the events the mutation produces.
func Fresh[P any]() Resolver[P] {
	return func(P) (uuid.UUID, error) {
		return uuid.New(), nil
	}
}

// Bypass returns ErrBypassed without consulting next whenever skip reports
// true for the payload. Otherwise it delegates to next.
func Bypass[P any](skip func(payload P) bool, next Resolver[P]) Resolver[P] {
	return func(payload P) (uuid.UUID, error) {
		if skip(payload) {
			return uuid.Nil, ErrBypassed
		}
		return next(payload)
	}
}
