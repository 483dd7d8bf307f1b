package media

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config describes the object store used for account images.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// PublicBaseURL prefixes object keys in returned URLs. When empty the
	// URL is derived from Endpoint or the AWS virtual-host form.
	PublicBaseURL string
	PathStyle     bool
	Timeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Region:  "us-east-1",
		Timeout: 30 * time.Second,
	}
}

// Enabled reports whether uploads are configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("media: region is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("media: access key and secret key must be set together")
	}
	for name, raw := range map[string]string{"endpoint": c.Endpoint, "public base url": c.PublicBaseURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("media: invalid %s %q", name, raw)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("media: timeout must be > 0")
	}
	return nil
}

// FromEnv reads VIDTUBE_S3_* variables.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Bucket = strings.TrimSpace(os.Getenv("VIDTUBE_S3_BUCKET"))
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_S3_REGION")); v != "" {
		cfg.Region = v
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(os.Getenv("VIDTUBE_S3_ENDPOINT")), "/")
	cfg.AccessKey = strings.TrimSpace(os.Getenv("VIDTUBE_S3_ACCESS_KEY"))
	cfg.SecretKey = os.Getenv("VIDTUBE_S3_SECRET_KEY")
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("VIDTUBE_S3_PUBLIC_BASE_URL")), "/")

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("VIDTUBE_S3_PATH_STYLE: %w", err)
		}
		cfg.PathStyle = b
	} else {
		// Custom endpoints default to path-style.
		cfg.PathStyle = cfg.Endpoint != ""
	}
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_S3_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("VIDTUBE_S3_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, cfg.Validate()
}
