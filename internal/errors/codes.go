// Package errors provides structured error handling for Trenton.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Provider/network errors
//   - 4XX: Validation errors
//   - 5XX: Internal/storage errors
package errors

import "strings"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding-provider and network errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDataDirLocked  = "ERR_203_DATA_DIR_LOCKED"

	// Provider errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeNoEmbedding         = "ERR_303_NO_EMBEDDING"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeUnsupportedFile = "ERR_402_UNSUPPORTED_FILE"
	ErrCodeFolderConflict  = "ERR_403_FOLDER_CONFLICT"
	ErrCodeNotFound        = "ERR_404_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeStorage  = "ERR_502_STORAGE"
)

// categoryFromCode derives the category from the numeric range in the code.
func categoryFromCode(code string) Category {
	switch {
	case strings.HasPrefix(code, "ERR_1"):
		return CategoryConfig
	case strings.HasPrefix(code, "ERR_2"):
		return CategoryIO
	case strings.HasPrefix(code, "ERR_3"):
		return CategoryProvider
	case strings.HasPrefix(code, "ERR_4"):
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// isRetryableCode reports whether operations failing with this code are
// worth retrying. Only transient provider conditions qualify.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable:
		return true
	}
	return false
}
