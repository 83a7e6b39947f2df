package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	State     StateEnvConfig
	Twitter   TwitterEnvConfig
	SofaScore SofaScoreEnvConfig
	RSS       RSSEnvConfig
	SMTP      SMTPEnvConfig
	Alert     AlertEnvConfig
	OTel      OTelEnvConfig
	// MetricsTextfile is a node-exporter textfile collector path. Empty disables metrics output.
	MetricsTextfile string
	// RunSnapshotPath receives a JSON report of the last run. Empty disables it.
	RunSnapshotPath string
}

type StateEnvConfig struct {
	Path      string
	Backend   string // "file" or "sqlite"
	Retention time.Duration
}

type TwitterEnvConfig struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
	BaseURL      string
	HTTPTimeout  time.Duration
}

type SofaScoreEnvConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
	UserAgent   string
}

type RSSEnvConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

type SMTPEnvConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	TLSMode            string
	InsecureSkipVerify bool
}

type AlertEnvConfig struct {
	EmailFrom string
	EmailTo   string
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

// Validate reports missing posting credentials.
func (c TwitterEnvConfig) Validate() error {
	missing := []string{}
	if c.APIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "TWITTER_API_SECRET")
	}
	if c.AccessToken == "" {
		missing = append(missing, "TWITTER_ACCESS_TOKEN")
	}
	if c.AccessSecret == "" {
		missing = append(missing, "TWITTER_ACCESS_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing twitter credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Enabled reports whether alert emails can be sent.
func (c AlertEnvConfig) Enabled(smtp SMTPEnvConfig) bool {
	return c.EmailTo != "" && smtp.Host != ""
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return EnvConfig{
		State: StateEnvConfig{
			Path:      envString("STATE_PATH", "state.json"),
			Backend:   strings.ToLower(envString("STATE_BACKEND", "file")),
			Retention: envDuration("STATE_RETENTION", 0),
		},
		Twitter: TwitterEnvConfig{
			APIKey:       envString("TWITTER_API_KEY", ""),
			APISecret:    envString("TWITTER_API_SECRET", ""),
			AccessToken:  envString("TWITTER_ACCESS_TOKEN", ""),
			AccessSecret: envString("TWITTER_ACCESS_SECRET", ""),
			BaseURL:      envString("X_API_BASE_URL", "https://api.twitter.com"),
			HTTPTimeout:  envDuration("X_HTTP_TIMEOUT", 20*time.Second),
		},
		SofaScore: SofaScoreEnvConfig{
			BaseURL:     envString("SOFASCORE_BASE_URL", "https://api.sofascore.com/api/v1"),
			HTTPTimeout: envDuration("SOFASCORE_HTTP_TIMEOUT", 20*time.Second),
			UserAgent:   envString("SOFASCORE_USER_AGENT", "Mozilla/5.0"),
		},
		RSS: RSSEnvConfig{
			HTTPTimeout: envDuration("RSS_HTTP_TIMEOUT", 20*time.Second),
			UserAgent:   envString("RSS_USER_AGENT", "Mozilla/5.0"),
		},
		SMTP: SMTPEnvConfig{
			Host:               envString("SMTP_HOST", ""),
			Port:               envInt("SMTP_PORT", 587),
			User:               envString("SMTP_USER", ""),
			Password:           envString("SMTP_PASSWORD", ""),
			TLSMode:            envString("SMTP_TLS_MODE", ""),
			InsecureSkipVerify: envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		},
		Alert: AlertEnvConfig{
			EmailFrom: envString("ALERT_EMAIL_FROM", ""),
			EmailTo:   envString("ALERT_EMAIL_TO", ""),
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: envString("OTEL_SERVICE_NAME", "matchday"),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
		MetricsTextfile: envString("METRICS_TEXTFILE", ""),
		RunSnapshotPath: envString("RUN_SNAPSHOT_PATH", ""),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}
