package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the part of the S3 SDK client used for multipart uploads.
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
}

// Presigner signs part uploads locally; it never contacts the store.
type Presigner interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// Client is safe for concurrent use. Close releases pooled connections when
// the SDK's HTTP client supports it.
type Client struct {
	api        API
	presigner  Presigner
	bucket     string
	httpClient aws.HTTPClient
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	// The SDK only applies a custom CA bundle (AWS_CA_BUNDLE or ca_bundle in
	// the shared profile) to a buildable client.
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		tr.MaxIdleConns = 100
		tr.MaxIdleConnsPerHost = 100
		tr.IdleConnTimeout = 90 * time.Second
	})

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithHTTPClient(httpClient),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	c := New(s3Client, s3.NewPresignClient(s3Client), opts.Bucket)
	// The loader may have replaced the client to add root CAs.
	c.httpClient = cfg.HTTPClient
	return c, nil
}

// New wraps already constructed SDK clients.
func New(api API, presigner Presigner, bucket string) *Client {
	return &Client{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
	}
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) Close() {
	if closer, ok := c.httpClient.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// CreateMultipartUpload opens a multipart upload and returns its upload ID.
func (c *Client) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := c.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", newStoreError("CreateMultipartUpload", c.bucket, key, "", err)
	}
	if result.UploadId == nil || *result.UploadId == "" {
		return "", newStoreError("CreateMultipartUpload", c.bucket, key, "", errors.New("store returned no upload id"))
	}

	return *result.UploadId, nil
}

// PresignUploadPart generates a presigned PUT URL for one part.
func (c *Client) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}

	request, err := c.presigner.PresignUploadPart(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		serr := newStoreError("PresignUploadPart", c.bucket, key, uploadID, err)
		serr.PartNumber = partNumber
		return "", serr
	}

	return request.URL, nil
}

// CompleteMultipartUpload assembles the parts, which must already be ordered.
func (c *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartInfo) (*CompletedUpload, error) {
	completedParts := make([]s3Types.CompletedPart, len(parts))
	for i, part := range parts {
		completedParts[i] = s3Types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		}
	}

	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3Types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	}

	result, err := c.api.CompleteMultipartUpload(ctx, input)
	if err != nil {
		return nil, newStoreError("CompleteMultipartUpload", c.bucket, key, uploadID, err)
	}

	completed := &CompletedUpload{
		Location: aws.ToString(result.Location),
		Bucket:   aws.ToString(result.Bucket),
		Key:      aws.ToString(result.Key),
		ETag:     aws.ToString(result.ETag),
	}
	if completed.Bucket == "" {
		completed.Bucket = c.bucket
	}
	if completed.Key == "" {
		completed.Key = key
	}
	return completed, nil
}

// AbortMultipartUpload cancels the upload; the store reclaims uploaded parts.
func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}

	if _, err := c.api.AbortMultipartUpload(ctx, input); err != nil {
		return newStoreError("AbortMultipartUpload", c.bucket, key, uploadID, err)
	}
	return nil
}

// ListParts returns one page of parts recorded for the upload. An empty marker
// starts at the first part.
func (c *Client) ListParts(ctx context.Context, key, uploadID, marker string, maxParts int32) (*PartsPage, error) {
	input := &s3.ListPartsInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}
	if marker != "" {
		input.PartNumberMarker = aws.String(marker)
	}
	if maxParts > 0 {
		input.MaxParts = aws.Int32(maxParts)
	}

	result, err := c.api.ListParts(ctx, input)
	if err != nil {
		return nil, newStoreError("ListParts", c.bucket, key, uploadID, err)
	}

	page := &PartsPage{
		Parts:       make([]UploadedPart, 0, len(result.Parts)),
		IsTruncated: aws.ToBool(result.IsTruncated),
		NextMarker:  aws.ToString(result.NextPartNumberMarker),
	}
	for _, p := range result.Parts {
		page.Parts = append(page.Parts, UploadedPart{
			PartNumber:   int(aws.ToInt32(p.PartNumber)),
			Size:         aws.ToInt64(p.Size),
			ETag:         aws.ToString(p.ETag),
			LastModified: aws.ToTime(p.LastModified),
		})
	}
	// Some S3-compatible stores omit the next marker on truncated pages.
	if page.IsTruncated && page.NextMarker == "" && len(page.Parts) > 0 {
		page.NextMarker = strconv.Itoa(page.Parts[len(page.Parts)-1].PartNumber)
	}

	return page, nil
}

// PartInfo represents a completed part for multipart upload
type PartInfo struct {
	ETag       string
	PartNumber int
}

// CompletedUpload describes the object produced by completing an upload.
type CompletedUpload struct {
	Location string
	Bucket   string
	Key      string
	ETag     string
}

// UploadedPart is a part the store has recorded for an open upload.
type UploadedPart struct {
	PartNumber   int
	Size         int64
	ETag         string
	LastModified time.Time
}

type PartsPage struct {
	Parts       []UploadedPart
	IsTruncated bool
	NextMarker  string
}
