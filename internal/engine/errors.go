package engine

import (
	"errors"
	"fmt"

	"staffline/internal/matcher"
	"staffline/internal/repo"
)

// Named failures returned by booking commands. Store and transport errors are
// returned as-is so callers can tell them apart from these.
var (
	ErrInvalidRequest    = matcher.ErrInvalidRequest
	ErrNotEligible       = errors.New("candidate not eligible")
	ErrAlreadyClaimed    = errors.New("seat already claimed")
	ErrStaleOffer        = errors.New("stale offer")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
)

// IsTaken reports whether err means another actor won a race for the same seat.
func IsTaken(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrStaleOffer)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
