package upload

import (
	"context"
	"time"

	"uploadflow/internal/s3"
)

// ObjectStore is the set of multipart primitives the orchestrator needs from
// the object store. Implementations must be safe for concurrent use.
type ObjectStore interface {
	Bucket() string
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []s3.PartInfo) (*s3.CompletedUpload, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	ListParts(ctx context.Context, key, uploadID, marker string, maxParts int32) (*s3.PartsPage, error)
}

// Uploader is the lifecycle surface served over HTTP.
type Uploader interface {
	Start(ctx context.Context, req *StartRequest) (*StartResponse, error)
	IssueURLs(ctx context.Context, req *IssueURLsRequest) (*IssueURLsResponse, error)
	Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error)
	Abort(ctx context.Context, req *AbortRequest) (*AbortResponse, error)
	ListParts(ctx context.Context, req *ListPartsRequest) (*ListPartsResponse, error)
}
