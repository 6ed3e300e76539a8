package errors

// ErrorCode identifies a class of failure in a grading run.
type ErrorCode int

// Error code ranges:
// 1000-1099: generic
// 1100-1199: configuration
// 1200-1299: sandbox
// 1300-1399: engine and compiler
const (
	Success  ErrorCode = 1000
	Internal ErrorCode = 1001

	ConfigurationError ErrorCode = 1100
	AlreadyRunning     ErrorCode = 1101
	IdentifierClash    ErrorCode = 1102

	SecurityViolation ErrorCode = 1200

	EngineFailure      ErrorCode = 1300
	CompilationFailure ErrorCode = 1301
)

var errorMessages = map[ErrorCode]string{
	Success:            "success",
	Internal:           "Internal error, cannot continue.",
	ConfigurationError: "invalid configuration",
	AlreadyRunning:     "Only one instance of the tester should be running at the same time!",
	IdentifierClash:    "suite identifier already in use",
	SecurityViolation:  "Testing was aborted due to an illegal statement. Remove the statement to continue.",
	EngineFailure:      "Could not run one or more classes. Please check if the folder structure matches package definitions.",
	CompilationFailure: "Compilation failed.",
}

// Message returns the default message for the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// String returns the short name of the code.
func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case Internal:
		return "Internal"
	case ConfigurationError, IdentifierClash:
		return "ConfigurationError"
	case AlreadyRunning:
		return "AlreadyRunning"
	case SecurityViolation:
		return "SecurityViolation"
	case EngineFailure:
		return "EngineFailure"
	case CompilationFailure:
		return "CompilationFailure"
	default:
		return "Unknown"
	}
}
