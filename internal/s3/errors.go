package s3

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// StoreError is returned by every Client operation that the store rejected or
// could not serve. Code and Message carry the provider's own diagnostics.
type StoreError struct {
	Op         string
	Bucket     string
	Key        string
	UploadID   string
	PartNumber int32

	Code    string
	Message string

	Err error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "s3.%s", e.Op)
	if e.Bucket != "" && e.Key != "" {
		fmt.Fprintf(&b, " %s/%s", e.Bucket, e.Key)
	}
	if e.UploadID != "" {
		fmt.Fprintf(&b, " upload %s", e.UploadID)
	}
	if e.PartNumber > 0 {
		fmt.Fprintf(&b, " part %d", e.PartNumber)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s: %s", e.Code, e.Message)
		return b.String()
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(op, bucket, key, uploadID string, err error) *StoreError {
	serr := &StoreError{
		Op:       op,
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
		Message:  err.Error(),
		Err:      err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		serr.Code = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			serr.Message = msg
		}
	}

	return serr
}
