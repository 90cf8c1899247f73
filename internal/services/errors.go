package services

import (
	"errors"
	"strings"
)

var (
	ErrAnalysis      = errors.New("analysis error")
	ErrUpload        = errors.New("upload error")
	ErrDraft         = errors.New("draft error")
	ErrFileSystem    = errors.New("file system error")
	ErrConfiguration = errors.New("configuration error")
)

// Error carries stage context for a failed collaborator call. Marker is one of
// the sentinel errors above and Message is the operator-facing text persisted
// on the item.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 5)
	if e.Marker != nil {
		parts = append(parts, e.Marker.Error())
	}
	parts = append(parts, buildDetail(e.Stage, e.Operation, e.Message))
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrFileSystem
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// Message returns the human-readable failure text suitable for persisting on
// an item. For wrapped errors this is the message plus the cause, without the
// marker and stage prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return err.Error()
	}
	switch {
	case svcErr.Message != "" && svcErr.Cause != nil:
		return svcErr.Message + ": " + Message(svcErr.Cause)
	case svcErr.Message != "":
		return svcErr.Message
	case svcErr.Cause != nil:
		return Message(svcErr.Cause)
	default:
		return svcErr.Error()
	}
}

// Details returns the outermost wrapped service error, if any.
func Details(err error) (*Error, bool) {
	var svcErr *Error
	if err == nil || !errors.As(err, &svcErr) {
		return nil, false
	}
	return svcErr, true
}

// ErrorKind classifies an error into a short label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAnalysis):
		return "analysis"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrDraft):
		return "draft"
	case errors.Is(err, ErrFileSystem):
		return "filesystem"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
