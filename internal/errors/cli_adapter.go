package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
		exit:    os.Exit,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if pte, ok := As(err); ok {
		return a.exitCodeFromPageTree(pte)
	}

	return 1
}

// exitCodeFromPageTree maps PageTreeError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromPageTree(err *PageTreeError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryPublish:
		return 8 // External system error
	case CategorySource, CategoryNaming, CategoryTemplate:
		return 9 // Content error
	case CategoryFileSystem, CategoryRenderer:
		return 11 // Build error
	case CategoryRuntime:
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

	if pte, ok := As(err); ok {
		return a.formatPageTree(pte)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatPageTree formats a PageTreeError for display.
func (a *CLIErrorAdapter) formatPageTree(err *PageTreeError) string {
	if a.verbose {
		return err.Error()
	}

	msg := err.Message
	if p, ok := err.Context["path"]; ok {
		msg = fmt.Sprintf("%s: %v", msg, p)
	} else if tok, ok := err.Context["token"]; ok {
		msg = fmt.Sprintf("%s: %v", msg, tok)
	} else if field, ok := err.Context["field"]; ok {
		msg = fmt.Sprintf("%s: %v %v", msg, field, err.Context["reason"])
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		return msg
	default:
		return fmt.Sprintf("%s: %s", err.Category, msg)
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

	_, _ = fmt.Fprintf(a.out, "%s\n", message)
	a.exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if pte, ok := As(err); ok {
		return pte.Category == CategoryInternal ||
			pte.Category == CategoryRuntime ||
			pte.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if pte, ok := As(err); ok {
		level := a.slogLevelFromSeverity(pte.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(pte.Category)),
		}
		for k, v := range pte.Context {
			attrs = append(attrs, slog.Any(k, v))
		}
		if pte.Cause != nil {
			attrs = append(attrs, slog.String("cause", pte.Cause.Error()))
		}
		if pte.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(context.Background(), level, pte.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts PageTreeError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
