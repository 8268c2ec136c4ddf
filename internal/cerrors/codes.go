// Package cerrors provides structured error handling for CodexLens.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (SQLite, filesystem, serialization)
//   - 3XX: Parse errors
//   - 4XX: Search errors
//   - 5XX: Permission errors
//   - 6XX: Model lock conflicts
package cerrors

// Category classifies an error for aggregation and reporting.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryParse      Category = "PARSE"
	CategorySearch     Category = "SEARCH"
	CategoryPermission Category = "PERMISSION"
	CategoryModelLock  Category = "MODEL_LOCK"
)

// Severity indicates how an error should be propagated.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigUnknownEnum = "ERR_102_CONFIG_UNKNOWN_ENUM"

	ErrCodeStorageBusy    = "ERR_201_STORAGE_BUSY"
	ErrCodeStorageCorrupt = "ERR_202_STORAGE_CORRUPT"
	ErrCodeStorageIO      = "ERR_203_STORAGE_IO"

	ErrCodeParseFailed = "ERR_301_PARSE_FAILED"

	ErrCodeSearchInvalidQuery = "ERR_401_SEARCH_INVALID_QUERY"
	ErrCodeSearchBackend      = "ERR_402_SEARCH_BACKEND"

	ErrCodePermissionDenied = "ERR_501_PERMISSION_DENIED"

	ErrCodeModelLockConflict = "ERR_601_MODEL_LOCK_CONFLICT"
)

// isRetryableCode reports whether the given code represents a transient
// storage failure ("database is locked"/"database is busy" class errors).
func isRetryableCode(code string) bool {
	return code == ErrCodeStorageBusy
}
