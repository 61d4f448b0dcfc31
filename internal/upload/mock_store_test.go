package upload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"uploadflow/internal/s3"
)

// MockStore implements ObjectStore for testing. Unset funcs return canned
// successes; every call is counted.
type MockStore struct {
	createFunc   func(ctx context.Context, key, contentType string) (string, error)
	presignFunc  func(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)
	completeFunc func(ctx context.Context, key, uploadID string, parts []s3.PartInfo) (*s3.CompletedUpload, error)
	abortFunc    func(ctx context.Context, key, uploadID string) error
	listFunc     func(ctx context.Context, key, uploadID, marker string, maxParts int32) (*s3.PartsPage, error)

	createCalls   atomic.Int32
	presignCalls  atomic.Int32
	completeCalls atomic.Int32
	abortCalls    atomic.Int32
	listCalls     atomic.Int32

	mu        sync.Mutex
	completed []s3.PartInfo
}

func (m *MockStore) Bucket() string { return "test-bucket" }

func (m *MockStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	m.createCalls.Add(1)
	if m.createFunc != nil {
		return m.createFunc(ctx, key, contentType)
	}
	return "test-upload-id", nil
}

func (m *MockStore) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	m.presignCalls.Add(1)
	if m.presignFunc != nil {
		return m.presignFunc(ctx, key, uploadID, partNumber, expires)
	}
	return fmt.Sprintf("https://test-bucket.s3.amazonaws.com/%s?partNumber=%d&uploadId=%s", key, partNumber, uploadID), nil
}

func (m *MockStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []s3.PartInfo) (*s3.CompletedUpload, error) {
	m.completeCalls.Add(1)
	m.mu.Lock()
	m.completed = append([]s3.PartInfo(nil), parts...)
	m.mu.Unlock()
	if m.completeFunc != nil {
		return m.completeFunc(ctx, key, uploadID, parts)
	}
	return &s3.CompletedUpload{
		Location: "https://test-bucket.s3.amazonaws.com/" + key,
		Bucket:   "test-bucket",
		Key:      key,
		ETag:     `"final-etag-2"`,
	}, nil
}

func (m *MockStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	m.abortCalls.Add(1)
	if m.abortFunc != nil {
		return m.abortFunc(ctx, key, uploadID)
	}
	return nil
}

func (m *MockStore) ListParts(ctx context.Context, key, uploadID, marker string, maxParts int32) (*s3.PartsPage, error) {
	m.listCalls.Add(1)
	if m.listFunc != nil {
		return m.listFunc(ctx, key, uploadID, marker, maxParts)
	}
	return &s3.PartsPage{}, nil
}

func (m *MockStore) completedParts() []s3.PartInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

func (m *MockStore) totalCalls() int32 {
	return m.createCalls.Load() + m.presignCalls.Load() + m.completeCalls.Load() + m.abortCalls.Load() + m.listCalls.Load()
}
