package upload

import (
	"encoding/json"
	"strconv"
	"time"
)

// StartRequest opens a new multipart upload.
type StartRequest struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

func (r *StartRequest) Validate() error {
	if r.FileName == "" {
		return invalidRequest(opStart, "file_name is required")
	}
	if r.FileType == "" {
		return invalidRequest(opStart, "file_type is required")
	}
	return nil
}

// StartResponse identifies the upload for every later call.
type StartResponse struct {
	UploadID  string `json:"upload_id"`
	ObjectKey string `json:"object_key"`
}

// IssueURLsRequest asks for presigned URLs for parts 1..PartsCount.
type IssueURLsRequest struct {
	ObjectKey  string `json:"object_key"`
	UploadID   string `json:"upload_id"`
	PartsCount int    `json:"parts_count"`
}

func (r *IssueURLsRequest) Validate() error {
	if err := requireSession(opIssueURLs, r.ObjectKey, r.UploadID); err != nil {
		return err
	}
	if r.PartsCount <= 0 {
		return invalidRequest(opIssueURLs, "parts_count must be a positive integer")
	}
	return nil
}

type IssueURLsResponse struct {
	Parts []PartURL `json:"parts"`
}

// PartURL is a delegated write credential for a single part.
type PartURL struct {
	PartNumber int       `json:"part_number"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CompleteRequest finalizes an upload. Parts is kept raw so that a malformed
// manifest is reported as a manifest problem, not as a malformed request.
type CompleteRequest struct {
	ObjectKey string          `json:"object_key"`
	UploadID  string          `json:"upload_id"`
	Parts     json.RawMessage `json:"parts"`
}

func (r *CompleteRequest) Validate() error {
	return requireSession(opComplete, r.ObjectKey, r.UploadID)
}

// CompleteResponse describes the durable object.
type CompleteResponse struct {
	Location string `json:"location"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	ETag     string `json:"etag"`
}

type AbortRequest struct {
	ObjectKey string `json:"object_key"`
	UploadID  string `json:"upload_id"`
}

func (r *AbortRequest) Validate() error {
	return requireSession(opAbort, r.ObjectKey, r.UploadID)
}

type AbortResponse struct {
	Status   string `json:"status"`
	UploadID string `json:"upload_id"`
}

// ListPartsRequest reads one page of recorded parts. Marker is the last part
// number of the previous page; MaxParts of zero uses the configured page size.
type ListPartsRequest struct {
	ObjectKey string
	UploadID  string
	Marker    string
	MaxParts  int
}

func (r *ListPartsRequest) Validate() error {
	if err := requireSession(opListParts, r.ObjectKey, r.UploadID); err != nil {
		return err
	}
	if r.Marker != "" {
		n, err := strconv.Atoi(r.Marker)
		if err != nil || n < 0 {
			return invalidRequest(opListParts, "marker must be a non-negative part number")
		}
	}
	if r.MaxParts < 0 {
		return invalidRequest(opListParts, "max_parts must not be negative")
	}
	return nil
}

type ListPartsResponse struct {
	Parts       []Part `json:"parts"`
	IsTruncated bool   `json:"is_truncated"`
	NextMarker  string `json:"next_marker,omitempty"`
}

// Part is a part the store has on record.
type Part struct {
	PartNumber   int       `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// ErrorResponse represents error responses from the upload API
type ErrorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Hint         string `json:"hint,omitempty"`
	StoreCode    string `json:"store_code,omitempty"`
	StoreMessage string `json:"store_message,omitempty"`
}

// Standard error codes
const (
	CodeBadRequest      = "bad_request"
	CodeInvalidManifest = "invalid_manifest"
	CodeUpstreamStore   = "upstream_store_error"
	CodeInternal        = "internal_error"
)

func requireSession(op, objectKey, uploadID string) error {
	if objectKey == "" {
		return invalidRequest(op, "object_key is required")
	}
	if uploadID == "" {
		return invalidRequest(op, "upload_id is required")
	}
	return nil
}
