package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PageTreeError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *PageTreeError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Content tree errors

// MissingSource reports a content root (or referenced source directory) that
// does not exist or is not a directory. Always fatal.
func MissingSource(path string) *PageTreeError {
	return New(CategorySource, SeverityFatal, "source directory not found").
		WithContext("path", path)
}

// NamingConventionViolation reports two sibling directories deriving the same
// segment key, which would make their output paths collide.
func NamingConventionViolation(parentPath, key, first, second string) *PageTreeError {
	return New(CategoryNaming, SeverityFatal, "sibling directories share a segment key").
		WithContext("parent", parentPath).
		WithContext("key", key).
		WithContext("first", first).
		WithContext("second", second)
}

// TemplateTokenMissing reports a required reference absent from the base
// template. Raised before any output is produced.
func TemplateTokenMissing(token, template string) *PageTreeError {
	return New(CategoryTemplate, SeverityFatal, "required template token missing").
		WithContext("token", token).
		WithContext("template", template)
}

// Output errors

func FileSystem(operation, path string, cause error) *PageTreeError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "filesystem operation failed").
		WithContext("operation", operation).
		WithContext("path", path)
}

// ExternalTool reports a failed or unavailable renderer invocation for a node.
func ExternalTool(tool, nodePath string, cause error) *PageTreeError {
	return Wrap(cause, CategoryRenderer, SeverityError, "renderer invocation failed").
		WithContext("tool", tool).
		WithContext("node", nodePath)
}

func PublishFailed(target string, cause error) *PageTreeError {
	return WrapRetryable(cause, CategoryPublish, SeverityError, "publish failed").
		WithContext("target", target)
}

// Internal errors

func InternalError(message string, cause error) *PageTreeError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
