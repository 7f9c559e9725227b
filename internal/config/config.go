// Package config loads the promotion core's settings from the
// environment. The one-shot CLI and the long-running service have
// separate loaders since the CLI binds one application version while
// the service takes those per request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultAddr       = ":8071"
	defaultProviderID = "bookverse-promotion"
	defaultKafkaTopic = "bookverse.promotions"
	defaultAuthScope  = "promotion:write"
)

// defaultStages is the demo ladder; the terminal stage is implied.
var defaultStages = []string{"DEV", "QA", "STAGING"}

// Platform groups the settings every mode needs to talk to the
// lifecycle platform and attach evidence.
type Platform struct {
	BaseURL    string
	Token      string
	ProjectKey string

	Stages     []string
	TraceLevel string

	ProviderID    string
	CommitSHA     string
	SigningKeyB64 string
	SigningKeyID  string
	WorkDir       string
}

// Audit groups the optional trail sinks. All zero means no trail.
type Audit struct {
	Dir          string
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string
}

// Config is the one-shot CLI configuration: one application version,
// one target stage, one step.
type Config struct {
	Platform
	Audit

	ApplicationKey        string
	Version               string
	TargetStage           string
	ReleaseAllowed        bool
	ReleaseRepositoryKeys []string
}

// ServiceConfig is the long-running HTTP mode configuration.
type ServiceConfig struct {
	Platform
	Audit

	Addr             string
	AuthPublicKeyB64 string
	AuthScope        string
}

func Load() (Config, error) {
	cfg := Config{
		Platform: loadPlatform(),
		Audit:    loadAudit(),

		ApplicationKey:        os.Getenv("PROMOTION_APPLICATION_KEY"),
		Version:               firstNonEmpty(os.Getenv("PROMOTION_VERSION"), os.Getenv("APP_VERSION")),
		TargetStage:           os.Getenv("PROMOTION_TARGET_STAGE"),
		ReleaseAllowed:        getBool("PROMOTION_RELEASE_ALLOWED", false),
		ReleaseRepositoryKeys: splitList(os.Getenv("PROMOTION_RELEASE_REPO_KEYS")),
	}
	if err := cfg.Platform.validate(); err != nil {
		return Config{}, err
	}
	if cfg.ApplicationKey == "" {
		return Config{}, fmt.Errorf("PROMOTION_APPLICATION_KEY required")
	}
	if cfg.Version == "" {
		return Config{}, fmt.Errorf("PROMOTION_VERSION required")
	}
	// TargetStage is validated by the caller: advancing needs it,
	// rolling back does not.
	return cfg, nil
}

func LoadService() (ServiceConfig, error) {
	cfg := ServiceConfig{
		Platform: loadPlatform(),
		Audit:    loadAudit(),

		Addr:             getEnv("PROMOTION_ADDR", defaultAddr),
		AuthPublicKeyB64: os.Getenv("PROMOTION_AUTH_PUBLIC_KEY_B64"),
		AuthScope:        getEnv("PROMOTION_AUTH_SCOPE", defaultAuthScope),
	}
	if err := cfg.Platform.validate(); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

func loadPlatform() Platform {
	stages := splitList(os.Getenv("PROMOTION_STAGES"))
	if len(stages) == 0 {
		stages = defaultStages
	}
	return Platform{
		BaseURL:    os.Getenv("APPTRUST_BASE_URL"),
		Token:      os.Getenv("APPTRUST_ACCESS_TOKEN"),
		ProjectKey: os.Getenv("PROMOTION_PROJECT_KEY"),

		Stages:     stages,
		TraceLevel: getEnv("PROMOTION_TRACE", "none"),

		ProviderID:    getEnv("PROMOTION_PROVIDER_ID", defaultProviderID),
		CommitSHA:     firstNonEmpty(os.Getenv("PROMOTION_COMMIT_SHA"), os.Getenv("GITHUB_SHA")),
		SigningKeyB64: os.Getenv("PROMOTION_SIGNING_KEY_B64"),
		SigningKeyID:  getEnv("PROMOTION_SIGNING_KEY_ID", defaultProviderID),
		WorkDir:       os.Getenv("PROMOTION_WORK_DIR"),
	}
}

func loadAudit() Audit {
	return Audit{
		Dir:          os.Getenv("PROMOTION_AUDIT_DIR"),
		DatabaseURL:  firstNonEmpty(os.Getenv("PROMOTION_AUDIT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers: splitList(os.Getenv("PROMOTION_AUDIT_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("PROMOTION_AUDIT_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:     os.Getenv("PROMOTION_AUDIT_S3_BUCKET"),
		S3Prefix:     os.Getenv("PROMOTION_AUDIT_S3_PREFIX"),
	}
}

func (p Platform) validate() error {
	if p.BaseURL == "" {
		return fmt.Errorf("APPTRUST_BASE_URL required")
	}
	if p.Token == "" {
		return fmt.Errorf("APPTRUST_ACCESS_TOKEN required")
	}
	if p.ProjectKey == "" {
		return fmt.Errorf("PROMOTION_PROJECT_KEY required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
