package upload

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrInvalidRequest: a required field is missing or has the wrong shape.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidManifest: the completion manifest failed local validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrUpstreamStore: the object store rejected or failed a well-formed call.
	ErrUpstreamStore = errors.New("upstream store error")
)

const (
	opStart     = "start"
	opIssueURLs = "issue_urls"
	opComplete  = "complete"
	opAbort     = "abort"
	opListParts = "list_parts"
)

// Error is the error type returned by the upload service.
type Error struct {
	Kind       error
	Op         string
	ObjectKey  string
	UploadID   string
	PartNumber int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upload.%s: %v", e.Op, e.Kind)
	if e.ObjectKey != "" {
		fmt.Fprintf(&b, " key=%s", e.ObjectKey)
	}
	if e.UploadID != "" {
		fmt.Fprintf(&b, " upload=%s", e.UploadID)
	}
	if e.PartNumber > 0 {
		fmt.Fprintf(&b, " part=%d", e.PartNumber)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause, so errors.Is matches the kind
// and errors.As still reaches a store error underneath.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the caller-facing description without the kind prefix.
func (e *Error) Message() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func invalidRequest(op, reason string) error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Reason: reason}
}

func invalidManifest(reason string) error {
	return &Error{Kind: ErrInvalidManifest, Op: opComplete, Reason: reason}
}

func upstream(op, objectKey, uploadID string, partNumber int, err error) error {
	return &Error{
		Kind:       ErrUpstreamStore,
		Op:         op,
		ObjectKey:  objectKey,
		UploadID:   uploadID,
		PartNumber: partNumber,
		Err:        err,
	}
}
