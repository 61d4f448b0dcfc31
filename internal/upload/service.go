package upload

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"uploadflow/internal/config"
	"uploadflow/internal/logging"
	"uploadflow/internal/s3"
)

// Service orchestrates multipart uploads. It keeps no session state: the
// store's upload ID is the only record of an upload, and every method is a
// single independent exchange with the store.
type Service struct {
	store  ObjectStore
	config *config.UploadConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store ObjectStore, cfg *config.UploadConfig, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultUploadConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start opens a multipart upload under a key derived from the file name.
// Calling it again creates an unrelated upload with a fresh key.
func (s *Service) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !isTypeAllowed(req.FileType, s.config.AllowedTypes) {
		return nil, invalidRequest(opStart, fmt.Sprintf("file_type %q is not allowed", req.FileType))
	}

	log := logging.FromContext(ctx, s.logger).With("bucket", s.store.Bucket())
	objectKey := BuildObjectKey(s.config.KeyPrefix, s.now(), req.FileName)

	uploadID, err := s.store.CreateMultipartUpload(ctx, objectKey, req.FileType)
	if err != nil {
		log.Error("failed to create multipart upload", "object_key", objectKey, "error", err)
		return nil, upstream(opStart, objectKey, "", 0, err)
	}

	log.Info("multipart upload started", "object_key", objectKey, "upload_id", uploadID, "content_type", req.FileType)
	return &StartResponse{
		UploadID:  uploadID,
		ObjectKey: objectKey,
	}, nil
}

// Complete validates the manifest locally and, only if it is well formed,
// asks the store to assemble the parts in ascending order. Whether the listed
// parts match what the store holds is left to the store.
func (s *Service) Complete(ctx context.Context, req *CompleteRequest) (*CompleteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.logger).With("bucket", s.store.Bucket())

	parts, err := ParseManifest(req.Parts, s.config.MaxParts)
	if err != nil {
		var uerr *Error
		if errors.As(err, &uerr) {
			uerr.ObjectKey, uerr.UploadID = req.ObjectKey, req.UploadID
		}
		log.Warn("rejected completion manifest", "object_key", req.ObjectKey, "upload_id", req.UploadID, "error", err)
		return nil, err
	}

	manifest := make([]s3.PartInfo, len(parts))
	for i, p := range parts {
		manifest[i] = s3.PartInfo{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	completed, err := s.store.CompleteMultipartUpload(ctx, req.ObjectKey, req.UploadID, manifest)
	if err != nil {
		log.Error("failed to complete multipart upload", "object_key", req.ObjectKey, "upload_id", req.UploadID, "parts", len(parts), "error", err)
		return nil, upstream(opComplete, req.ObjectKey, req.UploadID, 0, err)
	}

	log.Info("multipart upload completed", "object_key", completed.Key, "upload_id", req.UploadID, "parts", len(parts))
	return &CompleteResponse{
		Location: completed.Location,
		Bucket:   completed.Bucket,
		Key:      completed.Key,
		ETag:     completed.ETag,
	}, nil
}

// Abort cancels the upload. Store errors, including those for an upload that
// was already completed or aborted, are returned as is.
func (s *Service) Abort(ctx context.Context, req *AbortRequest) (*AbortResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.logger).With("bucket", s.store.Bucket())

	if err := s.store.AbortMultipartUpload(ctx, req.ObjectKey, req.UploadID); err != nil {
		log.Error("failed to abort multipart upload", "object_key", req.ObjectKey, "upload_id", req.UploadID, "error", err)
		return nil, upstream(opAbort, req.ObjectKey, req.UploadID, 0, err)
	}

	log.Info("multipart upload aborted", "object_key", req.ObjectKey, "upload_id", req.UploadID)
	return &AbortResponse{
		Status:   "aborted",
		UploadID: req.UploadID,
	}, nil
}

// ListParts returns one page of the parts the store has recorded.
func (s *Service) ListParts(ctx context.Context, req *ListPartsRequest) (*ListPartsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pageSize := s.config.ListPageSize
	if req.MaxParts > 0 && req.MaxParts < pageSize {
		pageSize = req.MaxParts
	}

	page, err := s.store.ListParts(ctx, req.ObjectKey, req.UploadID, req.Marker, int32(pageSize))
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to list parts", "object_key", req.ObjectKey, "upload_id", req.UploadID, "error", err)
		return nil, upstream(opListParts, req.ObjectKey, req.UploadID, 0, err)
	}

	resp := &ListPartsResponse{
		Parts:       make([]Part, 0, len(page.Parts)),
		IsTruncated: page.IsTruncated,
		NextMarker:  page.NextMarker,
	}
	for _, p := range page.Parts {
		resp.Parts = append(resp.Parts, toPart(p))
	}
	return resp, nil
}

// ListAllParts walks every page and returns the complete list.
func (s *Service) ListAllParts(ctx context.Context, objectKey, uploadID string) (*ListPartsResponse, error) {
	resp := &ListPartsResponse{Parts: []Part{}}
	for p, err := range s.Parts(ctx, objectKey, uploadID) {
		if err != nil {
			return nil, err
		}
		resp.Parts = append(resp.Parts, p)
	}
	return resp, nil
}

// Parts lazily iterates over all recorded parts, fetching pages on demand.
// Ranging over the sequence again restarts from the first part. Iteration
// stops after the first error.
func (s *Service) Parts(ctx context.Context, objectKey, uploadID string) iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		if err := requireSession(opListParts, objectKey, uploadID); err != nil {
			yield(Part{}, err)
			return
		}

		marker := ""
		for {
			page, err := s.store.ListParts(ctx, objectKey, uploadID, marker, int32(s.config.ListPageSize))
			if err != nil {
				yield(Part{}, upstream(opListParts, objectKey, uploadID, 0, err))
				return
			}
			for _, p := range page.Parts {
				if !yield(toPart(p), nil) {
					return
				}
			}
			if !page.IsTruncated || page.NextMarker == "" || page.NextMarker == marker {
				return
			}
			marker = page.NextMarker
		}
	}
}

func toPart(p s3.UploadedPart) Part {
	return Part{
		PartNumber:   p.PartNumber,
		Size:         p.Size,
		ETag:         p.ETag,
		LastModified: p.LastModified,
	}
}
