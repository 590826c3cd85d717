package shared

// ErrorCode classifies core failures for the transport adapters. The
// adapters own the mapping to status codes per channel; the core only
// ever emits these typed values.
type ErrorCode string

const (
	// CodeAuthRequired: no usable credential on a protected endpoint.
	CodeAuthRequired ErrorCode = "AUTH_REQUIRED"
	// CodeAuthInvalid: credential present but expired, revoked or malformed.
	CodeAuthInvalid ErrorCode = "AUTH_INVALID"
	// CodePermissionDenied: identified actor lacks a matching grant.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// CodeConfigurationError: malformed permission rejected at role-save time.
	CodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	// CodeStoreUnavailable: the credential or permission store could not
	// be read. The request fails as a downstream error, distinguishable
	// in the ledger from a genuine denial.
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// CodeLedgerUnavailable: journal enqueue failed; logged, never fatal
	// to the request.
	CodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
	// CodeBroadcastDeliveryFailed: a subscriber channel is saturated or
	// broken; isolated to that subscriber.
	CodeBroadcastDeliveryFailed ErrorCode = "BROADCAST_DELIVERY_FAILED"
)
