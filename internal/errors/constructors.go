package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PipelineError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Source stage errors

func SourceUnavailable(path string, cause error) *PipelineError {
	return Wrap(cause, CategorySource, SeverityFatal, "source tree unavailable").
		WithContext("path", path)
}

func SourceCloneFailed(url string, cause error) *PipelineError {
	return WrapRetryable(cause, CategorySource, SeverityFatal, "source clone failed").
		WithContext("url", url)
}

// Build stage errors

func BuildFailed(generator string, cause error) *PipelineError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "site generation failed").
		WithContext("generator", generator)
}

func BuildOutputMissing(path string) *PipelineError {
	return New(CategoryBuild, SeverityFatal, "generator produced no output").
		WithContext("path", path)
}

func VerifyFailed(broken int) *PipelineError {
	return New(CategoryBuild, SeverityFatal, "artifact verification failed").
		WithContext("broken_links", broken)
}

// Augment stage errors

func DescriptorMissing(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryAugment, SeverityFatal, "automation descriptor not found").
		WithContext("path", path)
}

func AugmentWriteFailed(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryAugment, SeverityFatal, "descriptor write failed").
		WithContext("path", path)
}

// Publish stage errors

func PublishAuthFailed(ref string, cause error) *PipelineError {
	return Wrap(cause, CategoryAuth, SeverityFatal, "hosting ref authorization failed").
		WithContext("ref", ref)
}

func PublishTransportFailed(ref string, cause error) *PipelineError {
	return WrapRetryable(cause, CategoryPublish, SeverityFatal, "publish transport failed").
		WithContext("ref", ref)
}

func PublishConflict(ref string, cause error) *PipelineError {
	return WrapRetryable(cause, CategoryPublish, SeverityFatal, "hosting ref changed by concurrent writer").
		WithContext("ref", ref)
}

// Infrastructure errors

func WorkspaceError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}
