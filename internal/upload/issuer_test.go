package upload

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uploadflow/internal/config"
	"uploadflow/internal/s3"
)

func TestService_IssueURLs(t *testing.T) {
	var ttl atomic.Int64
	store := &MockStore{}
	store.presignFunc = func(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
		ttl.Store(int64(expires))
		return fmt.Sprintf("https://signed/%s/%s/%d", key, uploadID, partNumber), nil
	}
	svc := newTestService(store)

	resp, err := svc.IssueURLs(context.Background(), &IssueURLsRequest{ObjectKey: "uploads/1_a.bin", UploadID: "u-1", PartsCount: 3})

	require.NoError(t, err)
	require.Len(t, resp.Parts, 3)
	seen := map[string]bool{}
	for i, p := range resp.Parts {
		assert.Equal(t, i+1, p.PartNumber)
		assert.Equal(t, http.MethodPut, p.Method)
		assert.Equal(t, fmt.Sprintf("https://signed/uploads/1_a.bin/u-1/%d", i+1), p.URL)
		assert.Equal(t, fixedNow.Add(time.Hour), p.ExpiresAt)
		seen[p.URL] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, time.Hour, time.Duration(ttl.Load()))
	assert.Equal(t, int32(3), store.presignCalls.Load())
}

func TestService_IssueURLs_OrderedUnderConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	store := &MockStore{}
	store.presignFunc = func(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
		return fmt.Sprintf("url-%d", partNumber), nil
	}
	svc := newTestService(store, func(c *config.UploadConfig) { c.IssueConcurrency = 4 })

	resp, err := svc.IssueURLs(context.Background(), &IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: 40})

	require.NoError(t, err)
	require.Len(t, resp.Parts, 40)
	for i, p := range resp.Parts {
		assert.Equal(t, i+1, p.PartNumber)
		assert.Equal(t, fmt.Sprintf("url-%d", i+1), p.URL)
	}
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestService_IssueURLs_Reissue(t *testing.T) {
	store := &MockStore{}
	svc := newTestService(store)
	req := &IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: 5}

	first, err := svc.IssueURLs(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.IssueURLs(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, second.Parts, len(first.Parts))
	for i := range first.Parts {
		assert.Equal(t, first.Parts[i].PartNumber, second.Parts[i].PartNumber)
	}
	assert.Zero(t, store.createCalls.Load()+store.completeCalls.Load()+store.abortCalls.Load())
}

func TestService_IssueURLs_InvalidRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     IssueURLsRequest
		wantMsg string
	}{
		{name: "missing key", req: IssueURLsRequest{UploadID: "u", PartsCount: 1}, wantMsg: "object_key is required"},
		{name: "missing upload id", req: IssueURLsRequest{ObjectKey: "k", PartsCount: 1}, wantMsg: "upload_id is required"},
		{name: "zero parts", req: IssueURLsRequest{ObjectKey: "k", UploadID: "u"}, wantMsg: "parts_count must be a positive integer"},
		{name: "negative parts", req: IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: -3}, wantMsg: "parts_count must be a positive integer"},
		{name: "too many parts", req: IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: 10001}, wantMsg: "parts_count must not exceed 10000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{}

			resp, err := newTestService(store).IssueURLs(context.Background(), &tt.req)

			assert.Nil(t, resp)
			require.ErrorIs(t, err, ErrInvalidRequest)
			var uerr *Error
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.wantMsg, uerr.Message())
			assert.Zero(t, store.totalCalls())
		})
	}
}

func TestService_IssueURLs_SigningFailure(t *testing.T) {
	store := &MockStore{}
	store.presignFunc = func(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
		if partNumber == 2 {
			return "", &s3.StoreError{Op: "PresignUploadPart", PartNumber: partNumber, Message: "credentials expired"}
		}
		return "ok", nil
	}

	resp, err := newTestService(store).IssueURLs(context.Background(), &IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: 3})

	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrUpstreamStore)
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 2, uerr.PartNumber)
	var serr *s3.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "credentials expired", serr.Message)
}

func TestService_IssueURLs_CanceledContext(t *testing.T) {
	store := &MockStore{}
	store.presignFunc = func(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
		return "", ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := newTestService(store).IssueURLs(ctx, &IssueURLsRequest{ObjectKey: "k", UploadID: "u", PartsCount: 50})

	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrUpstreamStore)
	assert.True(t, errors.Is(err, context.Canceled))
}
