package errors

// HTTP status codes for each error type, exposed for callers that need
// the raw integer (gin error-handling middleware, gRPC status mapping).
const (
	StatusValidationError    = 400
	StatusNotFoundError      = 404
	StatusConflictError      = 409
	StatusBadRequestError    = 400
	StatusInternalError      = 500
	StatusServiceUnavailable = 503
	StatusTransportError     = 400
)
