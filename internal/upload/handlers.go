package upload

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"uploadflow/internal/logging"
	"uploadflow/internal/response"
	"uploadflow/internal/s3"
)

const maxBodyBytes = 4 << 20

// allPartsLister is implemented by services that can walk every page.
type allPartsLister interface {
	ListAllParts(ctx context.Context, objectKey, uploadID string) (*ListPartsResponse, error)
}

type Handler struct {
	uploads Uploader
	logger  *slog.Logger
	timeout time.Duration
}

func NewHandler(uploads Uploader, logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		uploads: uploads,
		logger:  logger,
		timeout: timeout,
	}
}

// Routes serves the upload lifecycle relative to its mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleStart)
	r.Post("/urls", h.HandleIssueURLs)
	r.Post("/complete", h.HandleComplete)
	r.Post("/abort", h.HandleAbort)
	r.Get("/parts", h.HandleListParts)
	return r
}

// HandleStart handles POST /v1/uploads
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeJSON(w, r, opStart, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := h.uploads.Start(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, resp)
}

// HandleIssueURLs handles POST /v1/uploads/urls
func (h *Handler) HandleIssueURLs(w http.ResponseWriter, r *http.Request) {
	var req IssueURLsRequest
	if err := decodeJSON(w, r, opIssueURLs, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := h.uploads.IssueURLs(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// HandleComplete handles POST /v1/uploads/complete
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeJSON(w, r, opComplete, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := h.uploads.Complete(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// HandleAbort handles POST /v1/uploads/abort
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if err := decodeJSON(w, r, opAbort, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := h.uploads.Abort(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// HandleListParts handles GET /v1/uploads/parts?object_key=&upload_id=&marker=&max_parts=&all=
func (h *Handler) HandleListParts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListPartsRequest{
		ObjectKey: q.Get("object_key"),
		UploadID:  q.Get("upload_id"),
		Marker:    q.Get("marker"),
	}
	if v := q.Get("max_parts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, invalidRequest(opListParts, "max_parts must be an integer"))
			return
		}
		req.MaxParts = n
	}
	all := false
	if v := q.Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, invalidRequest(opListParts, "all must be a boolean"))
			return
		}
		all = b
	}

	lister, canListAll := h.uploads.(allPartsLister)
	if all {
		if !canListAll {
			h.writeError(w, r, invalidRequest(opListParts, "all is not supported by this service"))
			return
		}
		if q.Has("marker") || q.Has("max_parts") {
			h.writeError(w, r, invalidRequest(opListParts, "all cannot be combined with marker or max_parts"))
			return
		}
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	var (
		resp *ListPartsResponse
		err  error
	)
	if all {
		if err = req.Validate(); err == nil {
			resp, err = lister.ListAllParts(ctx, req.ObjectKey, req.UploadID)
		}
	} else {
		resp, err = h.uploads.ListParts(ctx, &req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// decodeJSON reads exactly one JSON object and rejects unknown or wrong-typed
// fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return invalidRequest(op, "invalid request body: "+err.Error())
	}
	if dec.More() {
		return invalidRequest(op, "request body must contain a single JSON object")
	}
	return nil
}

// writeError maps the error kind to a status and a standardized body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Message: err.Error()}
	var uerr *Error
	if errors.As(err, &uerr) {
		resp.Message = uerr.Message()
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidManifest):
		status = http.StatusUnprocessableEntity
		resp.Code = CodeInvalidManifest
		resp.Hint = "Each part needs a numeric part_number and the etag returned when it was uploaded"
	case errors.Is(err, ErrInvalidRequest):
		status = http.StatusBadRequest
		resp.Code = CodeBadRequest
	case errors.Is(err, ErrUpstreamStore):
		status = http.StatusBadGateway
		resp.Code = CodeUpstreamStore
		resp.Message = "object store rejected the request"
		resp.Hint = "List the recorded parts to compare with local progress before retrying"
		var serr *s3.StoreError
		switch {
		case errors.As(err, &serr):
			resp.StoreCode = serr.Code
			resp.StoreMessage = serr.Message
		case uerr != nil && uerr.Err != nil:
			resp.StoreMessage = uerr.Err.Error()
		}
		if uerr != nil {
			resp.Message = "object store rejected " + uerr.Op
		}
	default:
		resp.Code = CodeInternal
		resp.Message = "internal error"
		logging.FromContext(r.Context(), h.logger).Error("unhandled upload error", "path", r.URL.Path, "error", err)
	}

	response.JSON(w, status, resp)
}
