package errors

import "maps"

// ErrorCategory classifies an error for routing to exit codes, HTTP status
// codes and report issues.
type ErrorCategory string

const (
	// CategoryContent covers malformed front-matter and duplicate routes.
	// Content errors are fatal to a scan.
	CategoryContent ErrorCategory = "content"
	// CategoryCompile covers failures to turn one page into HTML.
	CategoryCompile ErrorCategory = "compile"
	// CategoryAsset covers assets that cannot be resolved or transformed.
	CategoryAsset ErrorCategory = "asset"
	// CategoryIO covers unreadable roots, unwritable destinations and
	// watch or bind failures.
	CategoryIO ErrorCategory = "io"

	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // stops the operation
	SeverityError   ErrorSeverity = "error"   // fails one unit of work
	SeverityWarning ErrorSeverity = "warning" // output degraded
	SeverityInfo    ErrorSeverity = "info"
)

// Context keys shared by the constructors.
const (
	KeyPath  = "path"
	KeyLine  = "line"
	KeyRoute = "route"
	KeyRef   = "ref"
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext, len(c)+len(other))
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}

// clone returns an independent copy so derived errors never share a map.
func (c ErrorContext) clone() ErrorContext {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}
