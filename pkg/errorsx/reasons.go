package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSourceStart   ReasonCode = "source_start"
	ReasonSourceFailure ReasonCode = "source_failure"

	ReasonTransportSend   ReasonCode = "transport_send"
	ReasonTransportClosed ReasonCode = "transport_closed"

	ReasonRequestTimeout   ReasonCode = "request_timeout"
	ReasonRequestMalformed ReasonCode = "request_malformed"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
