package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	_ "github.com/joho/godotenv/autoload"

	utils "uploadflow/internal"
	"uploadflow/internal/config"
	"uploadflow/internal/logging"
	"uploadflow/internal/router"
	"uploadflow/internal/s3"
)

// handler is built once per cold start and reused across invocations.
var handler http.Handler

func setup(ctx context.Context) (http.Handler, error) {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	uploadConfig, err := config.LoadUploadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Upload = uploadConfig
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := s3.NewClient(ctx, s3.Options{
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.S3Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return router.New(cfg, store, logger), nil
}

func lambdaHandler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return serve(ctx, handler, req)
}

// serve runs an API Gateway proxy event through h.
func serve(ctx context.Context, h http.Handler, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	httpReq, err := createHTTPRequest(ctx, req)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       "invalid request",
		}, nil
	}

	rec := newResponseRecorder()
	h.ServeHTTP(rec, httpReq)
	return rec.toProxyResponse(), nil
}

func createHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, err
		}
		body = decoded
	}

	query := url.Values{}
	for k, vs := range req.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range req.QueryStringParameters {
		if _, ok := query[k]; !ok {
			query.Set(k, v)
		}
	}

	target := &url.URL{Path: req.Path, RawQuery: query.Encode()}
	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, target.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if httpReq.Header.Get(k) == "" {
			httpReq.Header.Set(k, v)
		}
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		httpReq.RemoteAddr = ip
	}
	return httpReq, nil
}

type responseRecorder struct {
	header     http.Header
	body       bytes.Buffer
	statusCode int
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header:     http.Header{},
		statusCode: http.StatusOK,
	}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
}

func (r *responseRecorder) toProxyResponse() events.APIGatewayProxyResponse {
	single := make(map[string]string, len(r.header))
	for k, vs := range r.header {
		single[k] = strings.Join(vs, ",")
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        r.statusCode,
		Headers:           single,
		MultiValueHeaders: r.header,
		Body:              r.body.String(),
	}
}

func main() {
	h, err := setup(context.Background())
	if err != nil {
		utils.Shutdown("Failed to initialize", "error", err)
	}
	handler = h
	lambda.Start(lambdaHandler)
}
