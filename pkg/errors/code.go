package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Status store errors
// 12000-12999: Submission & Validation errors
// 13000-13999: Execution errors
// 14000-14999: Engine & Dataset errors
// 15000-15999: Artifact & Notification errors
// 16000-16999: Configuration errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202
	LockFailed     ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Token errors (10400-10499)
	TokenInvalid ErrorCode = 10400
	TokenExpired ErrorCode = 10401

	// ========== Status Store Errors (11000-11999) ==========

	StatusNotFound     ErrorCode = 11000
	StatusCreateFailed ErrorCode = 11001
	StatusUpdateFailed ErrorCode = 11002
	InvalidFlag        ErrorCode = 11003

	// ========== Submission & Validation Errors (12000-12999) ==========

	SubmissionNotFound          ErrorCode = 12000
	SubmissionMaterializeFailed ErrorCode = 12001
	SubmissionInfoInvalid       ErrorCode = 12002
	SubmissionNotMergeable      ErrorCode = 12003
	SubmissionLayoutInvalid     ErrorCode = 12004
	SubmissionListFailed        ErrorCode = 12005

	// ========== Execution Errors (13000-13999) ==========

	EntryPointLoadFailed ErrorCode = 13000
	EntryPointRunFailed  ErrorCode = 13001
	MetricComputeFailed  ErrorCode = 13002
	ExecutionFailed      ErrorCode = 13003
	SandboxError         ErrorCode = 13004
	TimeLimitExceeded    ErrorCode = 13005

	// ========== Engine & Dataset Errors (14000-14999) ==========

	EngineStartFailed  ErrorCode = 14000
	EngineStopped      ErrorCode = 14001
	DatasetNotFound    ErrorCode = 14002
	DatasetLoadFailed  ErrorCode = 14003
	DatasetCorrupted   ErrorCode = 14004
	GroundTruthInvalid ErrorCode = 14005

	// ========== Artifact & Notification Errors (15000-15999) ==========

	ArtifactPublishFailed ErrorCode = 15000
	ObjectStorageError    ErrorCode = 15001
	NotificationFailed    ErrorCode = 15100

	// ========== Configuration Errors (16000-16999) ==========

	ConfigurationError ErrorCode = 16000
	MissingEngineHome  ErrorCode = 16001
	MissingMaster      ErrorCode = 16002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized",
	Forbidden:           "Forbidden",
	TooManyRequests:     "Too many requests",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Token
	TokenInvalid: "Invalid token",
	TokenExpired: "Token expired",

	// Status store
	StatusNotFound:     "Status record not found",
	StatusCreateFailed: "Failed to create status record",
	StatusUpdateFailed: "Failed to update status record",
	InvalidFlag:        "Unknown status flag",

	// Submission
	SubmissionNotFound:          "Submission not found",
	SubmissionMaterializeFailed: "Failed to materialize submission",
	SubmissionInfoInvalid:       "Submission info.json is missing or invalid",
	SubmissionNotMergeable:      "Submission cannot be merged",
	SubmissionLayoutInvalid:     "Submission layout is invalid",
	SubmissionListFailed:        "Failed to list submissions",

	// Execution
	EntryPointLoadFailed: "Cannot load entry point",
	EntryPointRunFailed:  "Entry point failed",
	MetricComputeFailed:  "Failed to compute metrics",
	ExecutionFailed:      "Execution failed",
	SandboxError:         "Sandbox error",
	TimeLimitExceeded:    "Time limit exceeded",

	// Engine & Dataset
	EngineStartFailed:  "Failed to start execution engine",
	EngineStopped:      "Execution engine session is stopped",
	DatasetNotFound:    "Dataset not found",
	DatasetLoadFailed:  "Failed to load dataset",
	DatasetCorrupted:   "Dataset is corrupted",
	GroundTruthInvalid: "Ground truth is invalid",

	// Artifact & Notification
	ArtifactPublishFailed: "Failed to publish artifact",
	ObjectStorageError:    "Object storage operation failed",
	NotificationFailed:    "Failed to send notification",

	// Configuration
	ConfigurationError: "Invalid configuration",
	MissingEngineHome:  "Engine home is not configured",
	MissingMaster:      "Engine master endpoint is not configured",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// IsFatal reports whether the code must abort the evaluator run instead of being
// recovered inside a single submission pass.
func (c ErrorCode) IsFatal() bool {
	return c >= 16000 && c < 17000
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == StatusNotFound, c == SubmissionNotFound, c == DatasetNotFound:
		return 404
	case c == Unauthorized, c == TokenInvalid, c == TokenExpired:
		return 401
	case c == Forbidden:
		return 403
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidFlag:
		return 400
	default:
		return 500
	}
}
