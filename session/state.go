package session

// State is the lifecycle position of the device's session.
type State int

const (
	StateSignedOut State = iota
	StateValid
	StateNearExpiry
	StateRefreshing
	StateExpiredNoRefresh
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed-out"
	case StateValid:
		return "valid"
	case StateNearExpiry:
		return "near-expiry"
	case StateRefreshing:
		return "refreshing"
	case StateExpiredNoRefresh:
		return "expired-no-refresh"
	default:
		return "unknown"
	}
}
