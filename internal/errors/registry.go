package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Kind    Kind
	Message string
	Detail  string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Remote Errors (A100-A139)
	// ============================================

	"A101": {
		Kind:    KindAuthRequired,
		Message: "Authentication required",
		Detail:  "The backend answered with 401 or redirected to a login page. Sign in and retry.",
	},
	"A102": {
		Kind:    KindForbidden,
		Message: "Not allowed",
		Detail:  "The backend answered with 403. The signed-in user may not perform this action.",
	},
	"A103": {
		Kind:    KindRemoteFailure,
		Message: "Remote request failed",
		Detail:  "The backend answered with a non-success status or a failed envelope.",
	},
	"A104": {
		Kind:    KindRemoteFailure,
		Message: "Network error",
		Detail:  "The request did not produce a response.",
	},
	"A105": {
		Kind:    KindRemoteFailure,
		Message: "Malformed response",
		Detail:  "The response body could not be decoded as a JSON envelope.",
	},
	"A106": {
		Kind:    KindRemoteFailure,
		Message: "Rate limiter refused request",
		Detail:  "The client-side request limiter did not admit the request before the context ended.",
	},

	// ============================================
	// Mutation Errors (A140-A159)
	// ============================================

	"A141": {
		Kind:    KindBusy,
		Message: "Mutation already pending",
		Detail:  "A mutation for the same key is in flight. The new request was not sent.",
	},
	"A142": {
		Kind:    KindRemoteFailure,
		Message: "Mutation executor closed",
		Detail:  "The event loop backing the executor has stopped.",
	},

	// ============================================
	// Validation Errors (A160-A179)
	// ============================================

	"A161": {
		Kind:    KindValidation,
		Message: "Invalid request",
		Detail:  "The operation or its payload failed validation and was not sent.",
	},
	"A162": {
		Kind:    KindValidation,
		Message: "Unknown operation",
		Detail:  "The operation is not one the remote client knows how to route.",
	},

	// ============================================
	// Config Errors (A180-A199)
	// ============================================

	"A181": {
		Kind:    KindConfig,
		Message: "Invalid configuration",
		Detail:  "The configuration file could not be parsed.",
	},
	"A182": {
		Kind:    KindConfig,
		Message: "Configuration file not found",
		Detail:  "No agora.json or agora.yaml was found.",
	},
	"A183": {
		Kind:    KindConfig,
		Message: "Invalid configuration value",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
