package queue

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyQueuedOrPlaying = errors.New("player already in queue or match")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid match state")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrInvalidArgs            = errors.New("invalid arguments")
)

// unavailable tags an infrastructure failure so callers can match both the
// sentinel and the driver error.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func invalidState(matchID string, from, op string) error {
	return fmt.Errorf("cannot %s match %q from %s: %w", op, matchID, from, ErrInvalidState)
}
