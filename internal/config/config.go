package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultUploadConfigPath = "upload-config.yaml"

// keyPrefixPattern admits only characters that survive file name
// sanitization, with no empty segments and a trailing slash.
var keyPrefixPattern = regexp.MustCompile(`^([A-Za-z0-9_.\-]+/)+$`)

type Config struct {
	Port         string
	Env          string
	LogLevel     string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	AWSAccessKey string
	AWSSecretKey string
	APIKey       string

	// AmbientCredentials is set when the process runs under a role that the
	// SDK default chain can resolve (ECS task, Lambda, web identity).
	AmbientCredentials bool

	Upload *UploadConfig
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "production"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		AWSAccessKey:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		APIKey:             getEnv("API_KEY", ""),
		AmbientCredentials: hasAmbientCredentials(),
		Upload:             DefaultUploadConfig(),
	}
}

// Validate reports every missing or out-of-range setting at once. Any error
// here is fatal: the service must not start serving with a broken store setup.
func (c *Config) Validate() error {
	var errs []error

	if c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required"))
	}
	if c.S3Region == "" {
		errs = append(errs, errors.New("S3_REGION is required"))
	}

	hasKey, hasSecret := c.AWSAccessKey != "", c.AWSSecretKey != ""
	switch {
	case hasKey != hasSecret:
		errs = append(errs, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	case !hasKey && !c.AmbientCredentials:
		errs = append(errs, errors.New("no AWS credentials provided"))
	}

	if c.Upload == nil {
		errs = append(errs, errors.New("upload config is missing"))
	} else if err := c.Upload.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// UploadConfig holds the multipart upload policy.
type UploadConfig struct {
	CredentialTTLSeconds  int      `yaml:"credential_ttl_seconds"`
	KeyPrefix             string   `yaml:"key_prefix"`
	MaxParts              int      `yaml:"max_parts"`
	ListPageSize          int      `yaml:"list_page_size"`
	IssueConcurrency      int      `yaml:"issue_concurrency"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	AllowedTypes          []string `yaml:"allowed_types"`
}

func DefaultUploadConfig() *UploadConfig {
	return &UploadConfig{
		CredentialTTLSeconds:  3600,
		KeyPrefix:             "uploads/",
		MaxParts:              10000,
		ListPageSize:          1000,
		IssueConcurrency:      8,
		RequestTimeoutSeconds: 30,
	}
}

// LoadUploadConfig reads the policy file named by UPLOAD_CONFIG_PATH. Without
// that variable the default path is optional and defaults apply when it is absent.
func LoadUploadConfig() (*UploadConfig, error) {
	if path, ok := os.LookupEnv("UPLOAD_CONFIG_PATH"); ok && path != "" {
		return ReadUploadConfig(path)
	}

	cfg, err := ReadUploadConfig(defaultUploadConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultUploadConfig(), nil
	}
	return cfg, err
}

// ReadUploadConfig parses a YAML policy file. Keys absent from the file keep
// their default values.
func ReadUploadConfig(path string) (*UploadConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload config: %w", err)
	}

	cfg := DefaultUploadConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse upload config: %w", err)
	}

	return cfg, nil
}

func (u *UploadConfig) Validate() error {
	var errs []error
	if u.CredentialTTLSeconds <= 0 {
		errs = append(errs, errors.New("credential_ttl_seconds must be positive"))
	}
	// Presigned SigV4 URLs cannot outlive seven days.
	if u.CredentialTTLSeconds > 7*24*3600 {
		errs = append(errs, errors.New("credential_ttl_seconds must not exceed 604800"))
	}
	if !keyPrefixPattern.MatchString(u.KeyPrefix) || hasDotSegment(u.KeyPrefix) {
		errs = append(errs, fmt.Errorf("key_prefix %q must be one or more segments of [A-Za-z0-9_.-] each followed by '/'", u.KeyPrefix))
	}
	if u.MaxParts <= 0 || u.MaxParts > 10000 {
		errs = append(errs, errors.New("max_parts must be between 1 and 10000"))
	}
	if u.ListPageSize <= 0 || u.ListPageSize > 1000 {
		errs = append(errs, errors.New("list_page_size must be between 1 and 1000"))
	}
	if u.IssueConcurrency <= 0 {
		errs = append(errs, errors.New("issue_concurrency must be positive"))
	}
	if u.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("request_timeout_seconds must be positive"))
	}
	return errors.Join(errs...)
}

func (u *UploadConfig) CredentialTTL() time.Duration {
	return time.Duration(u.CredentialTTLSeconds) * time.Second
}

func (u *UploadConfig) RequestTimeout() time.Duration {
	return time.Duration(u.RequestTimeoutSeconds) * time.Second
}

func hasAmbientCredentials() bool {
	for _, key := range []string{
		"ECS_CONTAINER_METADATA_URI_V4",
		"AWS_LAMBDA_FUNCTION_NAME",
		"AWS_WEB_IDENTITY_TOKEN_FILE",
	} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func hasDotSegment(prefix string) bool {
	for _, seg := range strings.Split(prefix, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
