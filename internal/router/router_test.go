package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uploadflow/internal/config"
	"uploadflow/internal/logging"
	"uploadflow/internal/s3"
	"uploadflow/internal/upload"
)

// memoryStore keeps just enough multipart state to drive a whole upload.
type memoryStore struct {
	open      map[string]string
	completed map[string][]s3.PartInfo
}

func newMemoryStore() *memoryStore {
	return &memoryStore{open: map[string]string{}, completed: map[string][]s3.PartInfo{}}
}

func (m *memoryStore) Bucket() string { return "media" }

func (m *memoryStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	id := "upload-" + key
	m.open[id] = key
	return id, nil
}

func (m *memoryStore) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	return "https://media.example/" + key + "?uploadId=" + uploadID + "&partNumber=" + strconv.Itoa(int(partNumber)), nil
}

func (m *memoryStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []s3.PartInfo) (*s3.CompletedUpload, error) {
	if _, ok := m.open[uploadID]; !ok {
		return nil, &s3.StoreError{Op: "CompleteMultipartUpload", Code: "NoSuchUpload", Message: "The specified upload does not exist."}
	}
	delete(m.open, uploadID)
	m.completed[uploadID] = parts
	return &s3.CompletedUpload{Bucket: "media", Key: key, Location: "https://media.example/" + key, ETag: `"x-2"`}, nil
}

func (m *memoryStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if _, ok := m.open[uploadID]; !ok {
		return &s3.StoreError{Op: "AbortMultipartUpload", Code: "NoSuchUpload", Message: "The specified upload does not exist."}
	}
	delete(m.open, uploadID)
	return nil
}

func (m *memoryStore) ListParts(ctx context.Context, key, uploadID, marker string, maxParts int32) (*s3.PartsPage, error) {
	return &s3.PartsPage{Parts: []s3.UploadedPart{{PartNumber: 1, Size: 5, ETag: `"a"`}}}, nil
}

func testConfig(apiKey string) *config.Config {
	return &config.Config{APIKey: apiKey, Upload: config.DefaultUploadConfig()}
}

func call(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := New(testConfig("secret"), newMemoryStore(), slog.New(slog.DiscardHandler))

	rr := call(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(logging.RequestIDHeader))
}

func TestUploadsRequireAPIKey(t *testing.T) {
	h := New(testConfig("secret"), newMemoryStore(), nil)

	rr := call(t, h, http.MethodPost, "/v1/uploads", `{"file_name":"a.mp4","file_type":"video/mp4"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(t, h, http.MethodPost, "/v1/uploads", `{"file_name":"a.mp4","file_type":"video/mp4"}`, "X-API-Key", "secret")
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestUploadLifecycle(t *testing.T) {
	store := newMemoryStore()
	h := New(testConfig(""), store, nil)

	rr := call(t, h, http.MethodPost, "/v1/uploads", `{"file_name":"my file!.mp4","file_type":"video/mp4"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var started upload.StartResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	assert.Regexp(t, `^uploads/\d+_my_file_\.mp4$`, started.ObjectKey)

	session := `"object_key":"` + started.ObjectKey + `","upload_id":"` + started.UploadID + `"`

	rr = call(t, h, http.MethodPost, "/v1/uploads/urls", `{`+session+`,"parts_count":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var urls upload.IssueURLsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &urls))
	require.Len(t, urls.Parts, 2)
	assert.NotEqual(t, urls.Parts[0].URL, urls.Parts[1].URL)

	rr = call(t, h, http.MethodGet, "/v1/uploads/parts?object_key="+started.ObjectKey+"&upload_id="+started.UploadID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodPost, "/v1/uploads/complete", `{`+session+`,"parts":[{"part_number":2,"etag":"b"},{"part_number":1,"etag":"a"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []s3.PartInfo{{PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}}, store.completed[started.UploadID])

	rr = call(t, h, http.MethodPost, "/v1/uploads/abort", `{`+session+`}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	var errResp upload.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, upload.CodeUpstreamStore, errResp.Code)
	assert.Equal(t, "NoSuchUpload", errResp.StoreCode)
}

func TestUnknownRoute(t *testing.T) {
	h := New(testConfig(""), newMemoryStore(), nil)

	rr := call(t, h, http.MethodGet, "/v1/thumbnails", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
