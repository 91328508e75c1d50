package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if pe, ok := err.(*PipelineError); ok {
		return a.exitCodeFromPipeline(pe)
	}

	return 1
}

// exitCodeFromPipeline maps PipelineError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromPipeline(err *PipelineError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryAuth:
		return 5 // Auth error
	case CategoryNetwork, CategoryGit, CategoryPublish:
		return 8 // External system error
	case CategorySource, CategoryBuild, CategoryAugment, CategoryFileSystem:
		return 11 // Build error
	case CategoryDaemon:
		return 12 // Runtime error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if pe, ok := err.(*PipelineError); ok {
		return a.formatPipeline(pe)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatPipeline formats a PipelineError for display.
func (a *CLIErrorAdapter) formatPipeline(err *PipelineError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation, CategoryAuth:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if pe, ok := err.(*PipelineError); ok {
		return pe.Category == CategoryInternal ||
			pe.Category == CategoryDaemon ||
			pe.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	pe, ok := err.(*PipelineError)
	if !ok {
		a.logger.Error("command failed", "error", err)
		return
	}

	attrs := []any{"category", string(pe.Category), "severity", string(pe.Severity)}
	for k, v := range pe.Context {
		attrs = append(attrs, k, v)
	}
	if pe.Cause != nil {
		attrs = append(attrs, "cause", pe.Cause.Error())
	}

	switch pe.Severity {
	case SeverityWarning:
		a.logger.Warn(pe.Message, attrs...)
	default:
		a.logger.Error(pe.Message, attrs...)
	}
}
