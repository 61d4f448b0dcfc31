package upload

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"uploadflow/internal/logging"
)

// IssueURLs presigns one PUT URL per part number in [1, PartsCount].
//
// Issuing is not transactional. If signing fails for one part the URLs already
// produced are discarded and the error is returned; repeating the call is
// safe because a URL only grants permission and never touches uploaded parts.
func (s *Service) IssueURLs(ctx context.Context, req *IssueURLsRequest) (*IssueURLsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.PartsCount > s.config.MaxParts {
		return nil, invalidRequest(opIssueURLs, fmt.Sprintf("parts_count must not exceed %d", s.config.MaxParts))
	}

	log := logging.FromContext(ctx, s.logger)
	ttl := s.config.CredentialTTL()
	expiresAt := s.now().Add(ttl).UTC()

	// Each worker fills its own slot, so the result is ordered by part number
	// however the signing calls interleave.
	parts := make([]PartURL, req.PartsCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.IssueConcurrency)
	for i := range parts {
		if gctx.Err() != nil {
			break
		}
		partNumber := i + 1
		g.Go(func() error {
			url, err := s.store.PresignUploadPart(gctx, req.ObjectKey, req.UploadID, int32(partNumber), ttl)
			if err != nil {
				return upstream(opIssueURLs, req.ObjectKey, req.UploadID, partNumber, err)
			}
			parts[i] = PartURL{
				PartNumber: partNumber,
				Method:     http.MethodPut,
				URL:        url,
				ExpiresAt:  expiresAt,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("failed to issue part urls", "object_key", req.ObjectKey, "upload_id", req.UploadID, "parts_count", req.PartsCount, "error", err)
		return nil, err
	}
	// A canceled caller context can end the loop before any worker fails.
	if err := ctx.Err(); err != nil {
		return nil, upstream(opIssueURLs, req.ObjectKey, req.UploadID, 0, err)
	}

	log.Debug("issued part urls", "object_key", req.ObjectKey, "upload_id", req.UploadID, "parts_count", req.PartsCount, "ttl", ttl)
	return &IssueURLsResponse{Parts: parts}, nil
}
