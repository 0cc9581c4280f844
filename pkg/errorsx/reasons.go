package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLockAcquire ReasonCode = "lock_acquire"
	ReasonStaleAgent  ReasonCode = "stale_agent"
	ReasonHookPanic   ReasonCode = "hook_panic"

	ReasonSpeak ReasonCode = "speak"

	ReasonPublish              ReasonCode = "publish"
	ReasonPublisherUnavailable ReasonCode = "publisher_unavailable"

	ReasonTransportSend         ReasonCode = "transport_send"
	ReasonTransportNotConnected ReasonCode = "transport_not_connected"

	ReasonConfigInvalid ReasonCode = "config_invalid"
)
