package frames

// Metadata keys attached to frames.
const (
	MetaSessionID   = "session_id"
	MetaPhraseIndex = "phrase_index"
	MetaSource      = "source"
	MetaEvent       = "event"
)

// CloseCode is the status sent to the peer when a session ends. Values follow
// RFC 6455 so the websocket framer can pass them through unchanged.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going_away"
	case ClosePolicyViolation:
		return "policy_violation"
	case CloseInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}
