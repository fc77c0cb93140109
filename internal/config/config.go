package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// BlobConfig describes one object store.
type BlobConfig struct {
	Driver    string `yaml:"driver"` // filesystem, s3 or memory
	Directory string `yaml:"directory"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
}

// StorageConfig holds the object stores used for data partitions and the key registry.
type StorageConfig struct {
	Data BlobConfig `yaml:"data"`
	// Ops holds the key registry and snapshots. Falls back to Data when unset.
	Ops BlobConfig `yaml:"ops"`
	// Buckets are additional named stores that categories can point at.
	Buckets map[string]BlobConfig `yaml:"buckets"`
}

// RegistryConfig selects and tunes the key registry backend.
type RegistryConfig struct {
	Driver     string `yaml:"driver"` // document or database
	Object     string `yaml:"object"`
	MaxRetries int    `yaml:"max_retries"`
}

// CategoryConfig maps a category to its partition location.
type CategoryConfig struct {
	Store  string `yaml:"store"`
	Prefix string `yaml:"prefix"`
}

// DataConfig holds the data reader configuration.
type DataConfig struct {
	DefaultCategory string                    `yaml:"default_category"`
	DefaultVertical string                    `yaml:"default_vertical"`
	DefaultTier     string                    `yaml:"default_tier"`
	DefaultLimit    int                       `yaml:"default_limit"`
	MaxLimit        int                       `yaml:"max_limit"`
	SampleSize      int                       `yaml:"sample_size"`
	Categories      map[string]CategoryConfig `yaml:"categories"`
	// Verticals locate the public catalog.json and samples.jsonl per site vertical.
	Verticals       map[string]CategoryConfig `yaml:"verticals"`
	LegacyLayout    bool                      `yaml:"legacy_layout"`
	FallbackCounts  map[string]interface{}    `yaml:"fallback_counts"`
}

// AuthConfig holds the operator-provisioned static API keys.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// ProductConfig describes a purchasable checkout product.
type ProductConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Amount      int64  `yaml:"amount"`
	Currency    string `yaml:"currency"`
	Mode        string `yaml:"mode"` // payment or subscription
	Interval    string `yaml:"interval"`
	Product     string `yaml:"product"`
	SuccessURL  string `yaml:"success_url"`
	CancelURL   string `yaml:"cancel_url"`
}

// StripeConfig holds the payment provider configuration.
type StripeConfig struct {
	SecretKey     string                   `yaml:"secret_key"`
	WebhookSecret string                   `yaml:"webhook_secret"`
	Timeout       time.Duration            `yaml:"timeout"`
	Packs         map[string]ProductConfig `yaml:"packs"`
	Subscriptions map[string]ProductConfig `yaml:"subscriptions"`
}

// NotifyConfig holds chat webhook destinations.
type NotifyConfig struct {
	DiscordWebhookURL    string        `yaml:"discord_webhook_url"`
	DataWebhookURL       string        `yaml:"data_webhook_url"`
	RocketChatWebhookURL string        `yaml:"rocketchat_webhook_url"`
	Timeout              time.Duration `yaml:"timeout"`
	QueueSize            int           `yaml:"queue_size"`
}

// InferenceConfig holds the medical chat backends.
type InferenceConfig struct {
	LocalURL         string        `yaml:"local_url"`
	LocalKey         string        `yaml:"local_key"`
	LocalModel       string        `yaml:"local_model"`
	LocalTimeout     time.Duration `yaml:"local_timeout"`
	TogetherURL      string        `yaml:"together_url"`
	TogetherKey      string        `yaml:"together_key"`
	RemoteTimeout    time.Duration `yaml:"remote_timeout"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	DisableThreshold int           `yaml:"disable_threshold"`
	RevivalInterval  time.Duration `yaml:"revival_interval"`
}

// AdminConfig holds configuration for the admin endpoints.
type AdminConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// Enabled reports whether any admin credential is configured.
func (a AdminConfig) Enabled() bool {
	return a.Password != "" || a.PasswordHash != ""
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	SnapshotSchedule string `yaml:"snapshot_schedule"`
	SnapshotPrefix   string `yaml:"snapshot_prefix"`
	DigestSchedule   string `yaml:"digest_schedule"`
}

// RateLimitConfig bounds per-client request rates on public endpoints.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// Config holds the configuration for the gateway.
type Config struct {
	Port           int               `yaml:"port"`
	Debug          bool              `yaml:"debug"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	Database       DatabaseConfig    `yaml:"database"`
	Storage        StorageConfig     `yaml:"storage"`
	Registry       RegistryConfig    `yaml:"registry"`
	Data           DataConfig        `yaml:"data"`
	Auth           AuthConfig        `yaml:"auth"`
	Tiers          map[string]*int64 `yaml:"tiers"`
	Stripe         StripeConfig      `yaml:"stripe"`
	Notify         NotifyConfig      `yaml:"notify"`
	Inference      InferenceConfig   `yaml:"inference"`
	Admin          AdminConfig       `yaml:"admin"`
	Scheduler      SchedulerConfig   `yaml:"scheduler"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit"`
}

func quota(n int64) *int64 { return &n }

// DefaultTiers is the tier to quota mapping used when none is configured.
func DefaultTiers() map[string]*int64 {
	return map[string]*int64{
		"finetune":   quota(1000),
		"pro":        quota(50000),
		"custom":     quota(100000),
		"enterprise": quota(250000),
		"starter":    quota(500),
	}
}

func defaultPacks() map[string]ProductConfig {
	return map[string]ProductConfig{
		"starter": {
			Name:        "SwarmForge Featured Pack - 1,000 Pairs",
			Description: "1,000 CoVe-verified QA pairs. Any category (Medical, Aviation, or CRE). API key. Instant access.",
			Amount:      9900,
			Currency:    "usd",
			Mode:        "payment",
			Product:     "swarmforge-data-api",
			SuccessURL:  "https://swarmandbee.com/data-success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:   "https://swarmandbee.com/data",
		},
	}
}

func defaultSubscriptions() map[string]ProductConfig {
	return map[string]ProductConfig{
		"starter": {
			Name:        "SwarmCRE Starter - 500 credits/mo",
			Description: "Deep search, all 19 skills, priority inference, API key dashboard.",
			Amount:      4900,
			Currency:    "usd",
			Mode:        "subscription",
			Interval:    "month",
			Product:     "swarmcre-api",
			SuccessURL:  "https://swarmandbeecre.com/?checkout=success",
			CancelURL:   "https://swarmandbeecre.com/#pricing",
		},
		"pro": {
			Name:        "SwarmCRE Pro - 5,000 credits/mo",
			Description: "Deep search + batch, custom pipelines, webhooks, dedicated support.",
			Amount:      29900,
			Currency:    "usd",
			Mode:        "subscription",
			Interval:    "month",
			Product:     "swarmcre-api",
			SuccessURL:  "https://swarmandbeecre.com/?checkout=success",
			CancelURL:   "https://swarmandbeecre.com/#pricing",
		},
	}
}

func defaultCounts() map[string]interface{} {
	return map[string]interface{}{
		"platinum":      406181,
		"gold":          385626,
		"aviation":      17190,
		"cre":           2611,
		"drone":         1986,
		"medical_grind": 15378,
		"total":         828972,
		"vault_total":   791807,
		"grind_total":   37165,
		"updated":       "2026-02-23T21:10:39Z",
	}
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// A missing file is fine: defaults and environment variables carry the rest.

	applyEnv(&config)
	warnings = append(warnings, applyDefaults(&config)...)

	if err := validate(&config); err != nil {
		return nil, "", err
	}

	return &config, strings.Join(warnings, "; "), nil
}

func applyEnv(config *Config) {
	if port := os.Getenv("SWARMGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("SWARMGATE_DEBUG"); debug != "" {
		config.Debug = debug == "true"
	}
	if dsn := os.Getenv("SWARMGATE_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("SWARMGATE_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if driver := os.Getenv("SWARMGATE_REGISTRY_DRIVER"); driver != "" {
		config.Registry.Driver = driver
	}
	if bucket := os.Getenv("SWARMGATE_DATA_BUCKET"); bucket != "" {
		config.Storage.Data.Driver = "s3"
		config.Storage.Data.Bucket = bucket
	}
	if bucket := os.Getenv("SWARMGATE_OPS_BUCKET"); bucket != "" {
		config.Storage.Ops.Driver = "s3"
		config.Storage.Ops.Bucket = bucket
	}
	if region := os.Getenv("SWARMGATE_AWS_REGION"); region != "" {
		config.Storage.Data.Region = region
		config.Storage.Ops.Region = region
	}
	if keys := os.Getenv("SWARMGATE_API_KEYS"); keys != "" {
		config.Auth.APIKeys = splitList(keys)
	}
	if origins := os.Getenv("SWARMGATE_ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}
	if key := os.Getenv("SWARMGATE_STRIPE_SECRET_KEY"); key != "" {
		config.Stripe.SecretKey = key
	}
	if secret := os.Getenv("SWARMGATE_STRIPE_WEBHOOK_SECRET"); secret != "" {
		config.Stripe.WebhookSecret = secret
	}
	if url := os.Getenv("SWARMGATE_DISCORD_WEBHOOK_URL"); url != "" {
		config.Notify.DiscordWebhookURL = url
	}
	if url := os.Getenv("SWARMGATE_DISCORD_DATA_WEBHOOK_URL"); url != "" {
		config.Notify.DataWebhookURL = url
	}
	if url := os.Getenv("SWARMGATE_ROCKETCHAT_WEBHOOK_URL"); url != "" {
		config.Notify.RocketChatWebhookURL = url
	}
	if url := os.Getenv("SWARMGATE_INFERENCE_URL"); url != "" {
		config.Inference.LocalURL = url
	}
	if key := os.Getenv("SWARMGATE_INFERENCE_KEY"); key != "" {
		config.Inference.LocalKey = key
	}
	if key := os.Getenv("SWARMGATE_TOGETHER_API_KEY"); key != "" {
		config.Inference.TogetherKey = key
	}
	if key := os.Getenv("SWARMGATE_GEMINI_API_KEY"); key != "" {
		config.Inference.GeminiKey = key
	}
	if password := os.Getenv("SWARMGATE_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
}

func applyDefaults(config *Config) []string {
	var warnings []string

	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Storage.Data.Driver == "" {
		config.Storage.Data.Driver = "filesystem"
		if config.Storage.Data.Directory == "" {
			config.Storage.Data.Directory = "data"
		}
		warnings = append(warnings, "storage.data not set, using filesystem store in ./data")
	}
	if config.Storage.Ops.Driver == "" {
		config.Storage.Ops = config.Storage.Data
	}
	if config.Registry.Driver == "" {
		config.Registry.Driver = "document"
	}
	if config.Registry.Object == "" {
		config.Registry.Object = "keys/api-keys.json"
	}
	if config.Registry.MaxRetries == 0 {
		config.Registry.MaxRetries = 5
	}

	if config.Data.DefaultCategory == "" {
		config.Data.DefaultCategory = "med-vault"
	}
	if config.Data.DefaultVertical == "" {
		config.Data.DefaultVertical = "medical"
	}
	if config.Data.DefaultTier == "" {
		config.Data.DefaultTier = "platinum"
	}
	if config.Data.DefaultLimit == 0 {
		config.Data.DefaultLimit = 100
	}
	if config.Data.MaxLimit == 0 {
		config.Data.MaxLimit = 1000
	}
	if config.Data.SampleSize == 0 {
		config.Data.SampleSize = 10
	}
	if len(config.Data.Categories) == 0 && !config.Data.LegacyLayout {
		config.Data.LegacyLayout = true
		warnings = append(warnings, "data.categories not set, serving the legacy flat layout")
	}
	if len(config.Data.Verticals) == 0 {
		config.Data.Verticals = make(map[string]CategoryConfig)
		for _, v := range []string{"medical", "aviation", "cre", "core"} {
			config.Data.Verticals[v] = CategoryConfig{Store: "data", Prefix: v + "/"}
		}
	}
	if len(config.Data.FallbackCounts) == 0 {
		config.Data.FallbackCounts = defaultCounts()
	}

	if len(config.Tiers) == 0 {
		config.Tiers = DefaultTiers()
	}

	if config.Stripe.Timeout == 0 {
		config.Stripe.Timeout = 30 * time.Second
	}
	if len(config.Stripe.Packs) == 0 {
		config.Stripe.Packs = defaultPacks()
	}
	if len(config.Stripe.Subscriptions) == 0 {
		config.Stripe.Subscriptions = defaultSubscriptions()
	}
	if config.Stripe.SecretKey == "" {
		warnings = append(warnings, "stripe.secret_key not set, checkout and activation are disabled")
	}

	if config.Notify.Timeout == 0 {
		config.Notify.Timeout = 10 * time.Second
	}
	if config.Notify.QueueSize == 0 {
		config.Notify.QueueSize = 100
	}

	if config.Inference.LocalModel == "" {
		config.Inference.LocalModel = "SwarmMed-14B-v1.2"
	}
	if config.Inference.LocalTimeout == 0 {
		config.Inference.LocalTimeout = 30 * time.Second
	}
	if config.Inference.TogetherURL == "" {
		config.Inference.TogetherURL = "https://api.together.xyz"
	}
	if config.Inference.RemoteTimeout == 0 {
		config.Inference.RemoteTimeout = 60 * time.Second
	}
	if config.Inference.GeminiModel == "" {
		config.Inference.GeminiModel = "gemini-1.5-flash"
	}
	if config.Inference.DisableThreshold == 0 {
		config.Inference.DisableThreshold = 3
		warnings = append(warnings, "inference.disable_threshold not set, using default value of 3")
	}
	if config.Inference.RevivalInterval == 0 {
		config.Inference.RevivalInterval = 5 * time.Minute
	}

	if config.Admin.Username == "" {
		config.Admin.Username = "admin"
	}
	if !config.Admin.Enabled() {
		warnings = append(warnings, "admin credentials not set, admin endpoints are disabled")
	}

	if config.Scheduler.SnapshotSchedule == "" {
		config.Scheduler.SnapshotSchedule = "@daily"
	}
	if config.Scheduler.SnapshotPrefix == "" {
		config.Scheduler.SnapshotPrefix = "keys/snapshots/"
	}
	if config.Scheduler.DigestSchedule == "" {
		config.Scheduler.DigestSchedule = "@daily"
	}

	if config.RateLimit.PerMinute == 0 {
		config.RateLimit.PerMinute = 10
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = config.RateLimit.PerMinute
	}

	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{
			"https://swarmandbee.com",
			"https://swarmandbeecre.com",
			"https://swarmandbeeroi.com",
		}
	}

	return warnings
}

func validate(config *Config) error {
	switch config.Registry.Driver {
	case "document":
	case "database":
		if config.Database.Type == "" || config.Database.DSN == "" {
			return fmt.Errorf("registry.driver is database but database type and dsn are not configured")
		}
	default:
		return fmt.Errorf("unsupported registry driver: %s", config.Registry.Driver)
	}

	stores := map[string]BlobConfig{"data": config.Storage.Data, "ops": config.Storage.Ops}
	for name, b := range config.Storage.Buckets {
		stores[name] = b
	}
	for name, b := range stores {
		if err := validateBlob(name, b); err != nil {
			return err
		}
	}

	for name, category := range config.Data.Categories {
		if err := validateStoreRef("categories", name, category, config.Storage.Buckets); err != nil {
			return err
		}
	}
	for name, vertical := range config.Data.Verticals {
		if err := validateStoreRef("verticals", name, vertical, config.Storage.Buckets); err != nil {
			return err
		}
	}

	if config.Data.DefaultLimit > config.Data.MaxLimit {
		return fmt.Errorf("data.default_limit (%d) exceeds data.max_limit (%d)", config.Data.DefaultLimit, config.Data.MaxLimit)
	}

	for tier, q := range config.Tiers {
		if q != nil && *q < 0 {
			return fmt.Errorf("tiers.%s has a negative quota", tier)
		}
	}
	return nil
}

func validateBlob(name string, b BlobConfig) error {
	switch b.Driver {
	case "filesystem":
		if b.Directory == "" {
			return fmt.Errorf("storage.%s: filesystem driver requires a directory", name)
		}
	case "s3":
		if b.Bucket == "" {
			return fmt.Errorf("storage.%s: s3 driver requires a bucket", name)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.%s: unsupported driver %q", name, b.Driver)
	}
	return nil
}

func validateStoreRef(section, name string, c CategoryConfig, buckets map[string]BlobConfig) error {
	if c.Store == "" || c.Store == "data" || c.Store == "ops" {
		return nil
	}
	if _, ok := buckets[c.Store]; !ok {
		return fmt.Errorf("data.%s.%s references unknown store %q", section, name, c.Store)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
