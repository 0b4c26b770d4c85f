package rulesync

import (
	"errors"
	"fmt"
)

// Kind classifies a failed sync.
type Kind int

const (
	// NetworkUnavailable covers transport failures and non-success statuses.
	NetworkUnavailable Kind = iota + 1
	// ChallengeDetected means an anti-bot interstitial was served instead of data.
	ChallengeDetected
	// InvalidPayload means the body was not a JSON array or the URL was unusable.
	InvalidPayload
)

func (k Kind) String() string {
	switch k {
	case NetworkUnavailable:
		return "network-unavailable"
	case ChallengeDetected:
		return "challenge-detected"
	case InvalidPayload:
		return "invalid-payload"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// SyncError is returned by Fetch and Sync for classified failures.
type SyncError struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rule sync %s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("rule sync %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
