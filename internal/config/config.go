// Package config loads the vellum configuration from HCL.
package config

import (
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the root configuration for all vellum commands.
type Config struct {
	// LogLevel controls hclog verbosity (trace, debug, info, warn, error).
	LogLevel string `hcl:"log_level,optional"`

	Server      *ServerConfig      `hcl:"server,block"`
	ObjectStore *ObjectStoreConfig `hcl:"objectstore,block"`
	Prefixes    *PrefixConfig      `hcl:"prefixes,block"`
	Kafka       *KafkaConfig       `hcl:"kafka,block"`
	Database    *DatabaseConfig    `hcl:"database,block"`
	Resolver    *ResolverConfig    `hcl:"resolver,block"`
	OCR         *OCRConfig         `hcl:"ocr,block"`
	PII         *PIIConfig         `hcl:"pii,block"`
	Redact      *RedactConfig      `hcl:"redact,block"`
	Chunk       *ChunkConfig       `hcl:"chunk,block"`
	Embed       *EmbedConfig       `hcl:"embed,block"`
	Vector      *VectorConfig      `hcl:"vector,block"`
	Rerank      *RerankConfig      `hcl:"rerank,block"`
	Router      *RouterConfig      `hcl:"router,block"`
	Invoker     *InvokerConfig     `hcl:"invoker,block"`
	Reaper      *ReaperConfig      `hcl:"reaper,block"`
	Datadog     *DatadogConfig     `hcl:"datadog,block"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `hcl:"addr,optional"`
}

// ObjectStoreConfig configures the object-store gateway.
type ObjectStoreConfig struct {
	// Backend is "s3" or "file".
	Backend         string `hcl:"backend,optional"`
	Bucket          string `hcl:"bucket,optional"`
	Region          string `hcl:"region,optional"`
	Endpoint        string `hcl:"endpoint,optional"`
	AccessKeyID     string `hcl:"access_key_id,optional"`
	SecretAccessKey string `hcl:"secret_access_key,optional"`
	// Root is the base directory for the file backend.
	Root string `hcl:"root,optional"`
	// MaxRetries bounds the exponential backoff on transient errors.
	MaxRetries int `hcl:"max_retries,optional"`
	// NotifyWrites publishes a queue notification for every gateway write,
	// standing in for native bucket events. Defaults to true for the file
	// backend; S3 deployments normally rely on bucket notifications instead.
	NotifyWrites *bool `hcl:"notify_writes,optional"`
}

// PrefixConfig names the object-store prefixes each stage reads and writes.
// Defaults follow the standard layout; all prefixes are canonicalized to end
// with "/".
type PrefixConfig struct {
	Raw          string `hcl:"raw,optional"`
	Office       string `hcl:"office,optional"`
	PDFRaw       string `hcl:"pdf_raw,optional"`
	PDFPages     string `hcl:"pdf_pages,optional"`
	TextPages    string `hcl:"text_pages,optional"`
	TextPagesRaw string `hcl:"text_pages_raw,optional"`
	ScanPages    string `hcl:"scan_pages,optional"`
	HOCR         string `hcl:"hocr,optional"`
	TextDocs     string `hcl:"text_docs,optional"`
	Redacted     string `hcl:"redacted,optional"`
	Curated      string `hcl:"curated,optional"`
}

// KafkaConfig configures the queue transport.
type KafkaConfig struct {
	Brokers           []string `hcl:"brokers"`
	NotificationTopic string   `hcl:"notification_topic,optional"`
	InvocationTopic   string   `hcl:"invocation_topic,optional"`
	ConsumerGroup     string   `hcl:"consumer_group,optional"`
	ConsumeFromStart  bool     `hcl:"consume_from_start,optional"`
	EnableTLS         bool     `hcl:"enable_tls,optional"`
	SASLUsername      string   `hcl:"sasl_username,optional"`
	SASLPassword      string   `hcl:"sasl_password,optional"`
}

// DatabaseConfig configures the relational store backing audit records,
// collection TTLs, and prompt templates.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `hcl:"driver,optional"`
	DSN    string `hcl:"dsn,optional"`
}

// ResolverConfig configures the setting/secret resolution chain.
type ResolverConfig struct {
	// ParameterPrefix is prepended to setting names for SSM lookups, e.g.
	// "/vellum/prod".
	ParameterPrefix string `hcl:"parameter_prefix,optional"`
	Region          string `hcl:"region,optional"`
	// DisableParameterStore skips the SSM layer entirely.
	DisableParameterStore bool `hcl:"disable_parameter_store,optional"`
}

// OCRConfig configures the OCR extractor.
type OCRConfig struct {
	// Engine is one of easyocr, paddleocr, trocr, docling, ocrmypdf.
	Engine         string `hcl:"engine,optional"`
	Endpoint       string `hcl:"endpoint,optional"`
	DPI            int    `hcl:"dpi,optional"`
	TimeoutSeconds int    `hcl:"timeout_seconds,optional"`
	ForceOCR       bool   `hcl:"force_ocr,optional"`
}

// PIIConfig configures entity detection.
type PIIConfig struct {
	// NEREndpoint is the remote NER service; empty disables the ML engine.
	NEREndpoint    string `hcl:"ner_endpoint,optional"`
	TimeoutSeconds int    `hcl:"timeout_seconds,optional"`
	// Domain adds a domain pack ("Medical" or "Legal") to every pipeline
	// scan. API callers pick their domain per request instead.
	Domain string `hcl:"domain,optional"`
}

// RedactConfig configures the redactor.
type RedactConfig struct {
	// WaitTimeoutSeconds bounds the wait for hOCR availability.
	WaitTimeoutSeconds  int `hcl:"wait_timeout_seconds,optional"`
	PollIntervalSeconds int `hcl:"poll_interval_seconds,optional"`
	RenderDPI           int `hcl:"render_dpi,optional"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	Size    int `hcl:"size,optional"`
	Overlap int `hcl:"overlap,optional"`
	// Strategies maps docType to "simple" or "universal".
	Strategies map[string]string `hcl:"strategies,optional"`
}

// EmbedConfig configures embedding model selection.
type EmbedConfig struct {
	DefaultModel string `hcl:"default_model,optional"`
	// Models maps docType to a model identifier.
	Models         map[string]string `hcl:"models,optional"`
	OllamaURL      string            `hcl:"ollama_url,optional"`
	OpenAIBaseURL  string            `hcl:"openai_base_url,optional"`
	OpenAIAPIKey   string            `hcl:"openai_api_key,optional"`
	BedrockRegion  string            `hcl:"bedrock_region,optional"`
	BatchSize      int               `hcl:"batch_size,optional"`
	TimeoutSeconds int               `hcl:"timeout_seconds,optional"`
}

// VectorConfig configures the vector store proxy.
type VectorConfig struct {
	// DefaultMode is "qdrant" or "bleve".
	DefaultMode string `hcl:"default_mode,optional"`
	QdrantHost  string `hcl:"qdrant_host,optional"`
	QdrantPort  int    `hcl:"qdrant_port,optional"`
	QdrantKey   string `hcl:"qdrant_api_key,optional"`
	BlevePath   string `hcl:"bleve_path,optional"`
	// FetchMultiplier over-fetches candidates so proxy-side filters can
	// still fill top_k.
	FetchMultiplier int `hcl:"fetch_multiplier,optional"`
}

// RerankConfig configures the reranker.
type RerankConfig struct {
	// Provider is "local" or "remote".
	Provider       string `hcl:"provider,optional"`
	Endpoint       string `hcl:"endpoint,optional"`
	TimeoutSeconds int    `hcl:"timeout_seconds,optional"`
}

// RouterConfig configures the LLM router cascade.
type RouterConfig struct {
	MaxPromptLength int `hcl:"max_prompt_length,optional"`
	// WordThreshold splits simple from complex prompts.
	WordThreshold  int      `hcl:"word_threshold,optional"`
	SimpleBackend  string   `hcl:"simple_backend,optional"`
	ComplexBackend string   `hcl:"complex_backend,optional"`
	DefaultBackend string   `hcl:"default_backend,optional"`
	Allowlist      []string `hcl:"allowlist,optional"`
	// ClassifierModel enables the predictive strategy when set.
	ClassifierModel string `hcl:"classifier_model,optional"`
}

// InvokerConfig configures the LLM invoker and its backends.
type InvokerConfig struct {
	Backends []BackendConfig `hcl:"backend,block"`
}

// BackendConfig configures one invoker backend.
type BackendConfig struct {
	Name             string   `hcl:"name,label"`
	Endpoints        []string `hcl:"endpoints,optional"`
	Region           string   `hcl:"region,optional"`
	Model            string   `hcl:"model,optional"`
	APIKey           string   `hcl:"api_key,optional"`
	FailureThreshold int      `hcl:"failure_threshold,optional"`
	CooldownSeconds  int      `hcl:"cooldown_seconds,optional"`
	TimeoutSeconds   int      `hcl:"timeout_seconds,optional"`
	MaxTokens        int      `hcl:"max_tokens,optional"`
	Temperature      *float64 `hcl:"temperature,optional"`
	TopP             *float64 `hcl:"top_p,optional"`
	TopK             *int     `hcl:"top_k,optional"`
}

// ReaperConfig configures the ephemeral-collection reaper.
type ReaperConfig struct {
	// Schedule is a cron expression with seconds; default sweeps every
	// minute.
	Schedule string `hcl:"schedule,optional"`
	// SourceRetentionSeconds is the pending-delete cutoff for raw objects.
	SourceRetentionSeconds int `hcl:"source_retention_seconds,optional"`
}

// DatadogConfig enables tracing on the HTTP server.
type DatadogConfig struct {
	Enabled bool   `hcl:"enabled,optional"`
	Service string `hcl:"service,optional"`
	Env     string `hcl:"env,optional"`
}

// Default topic names, also used by the single-process dev mode where no
// kafka block is configured.
const (
	DefaultNotificationTopic = "vellum.notifications"
	DefaultInvocationTopic   = "vellum.invocations"
)

// NewConfig parses the HCL file at path, applies defaults, and validates.
func NewConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file
// read. Used by tests and by stage commands running against local backends.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields with their documented defaults.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}

	if c.ObjectStore == nil {
		c.ObjectStore = &ObjectStoreConfig{}
	}
	if c.ObjectStore.Backend == "" {
		c.ObjectStore.Backend = "s3"
	}
	if c.ObjectStore.Bucket == "" {
		c.ObjectStore.Bucket = "vellum-docs"
	}
	if c.ObjectStore.Region == "" {
		c.ObjectStore.Region = "us-east-1"
	}
	if c.ObjectStore.MaxRetries == 0 {
		c.ObjectStore.MaxRetries = 4
	}
	if c.ObjectStore.NotifyWrites == nil {
		notify := c.ObjectStore.Backend == "file"
		c.ObjectStore.NotifyWrites = &notify
	}

	if c.Prefixes == nil {
		c.Prefixes = &PrefixConfig{}
	}
	c.Prefixes.setDefaults()

	if c.Kafka != nil {
		if c.Kafka.NotificationTopic == "" {
			c.Kafka.NotificationTopic = DefaultNotificationTopic
		}
		if c.Kafka.InvocationTopic == "" {
			c.Kafka.InvocationTopic = DefaultInvocationTopic
		}
		if c.Kafka.ConsumerGroup == "" {
			c.Kafka.ConsumerGroup = "vellum-worker"
		}
	}

	if c.Database == nil {
		c.Database = &DatabaseConfig{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "vellum.db"
	}

	if c.Resolver == nil {
		c.Resolver = &ResolverConfig{}
	}
	if c.Resolver.ParameterPrefix == "" {
		c.Resolver.ParameterPrefix = "/vellum"
	}

	if c.OCR == nil {
		c.OCR = &OCRConfig{}
	}
	if c.OCR.Engine == "" {
		c.OCR.Engine = "easyocr"
	}
	if c.OCR.DPI == 0 {
		c.OCR.DPI = 300
	}
	if c.OCR.TimeoutSeconds == 0 {
		c.OCR.TimeoutSeconds = 120
	}

	if c.PII == nil {
		c.PII = &PIIConfig{}
	}
	if c.PII.TimeoutSeconds == 0 {
		c.PII.TimeoutSeconds = 60
	}

	if c.Redact == nil {
		c.Redact = &RedactConfig{}
	}
	if c.Redact.WaitTimeoutSeconds == 0 {
		c.Redact.WaitTimeoutSeconds = 300
	}
	if c.Redact.PollIntervalSeconds == 0 {
		c.Redact.PollIntervalSeconds = 5
	}
	if c.Redact.RenderDPI == 0 {
		c.Redact.RenderDPI = 150
	}

	if c.Chunk == nil {
		c.Chunk = &ChunkConfig{}
	}
	if c.Chunk.Size == 0 {
		c.Chunk.Size = 1000
	}
	if c.Chunk.Overlap == 0 {
		c.Chunk.Overlap = 100
	}

	if c.Embed == nil {
		c.Embed = &EmbedConfig{}
	}
	if c.Embed.DefaultModel == "" {
		c.Embed.DefaultModel = "sbert/nomic-embed-text"
	}
	if c.Embed.OllamaURL == "" {
		c.Embed.OllamaURL = "http://localhost:11434"
	}
	if c.Embed.BatchSize == 0 {
		c.Embed.BatchSize = 32
	}
	if c.Embed.TimeoutSeconds == 0 {
		c.Embed.TimeoutSeconds = 60
	}

	if c.Vector == nil {
		c.Vector = &VectorConfig{}
	}
	if c.Vector.DefaultMode == "" {
		c.Vector.DefaultMode = "qdrant"
	}
	if c.Vector.QdrantHost == "" {
		c.Vector.QdrantHost = "localhost"
	}
	if c.Vector.QdrantPort == 0 {
		c.Vector.QdrantPort = 6334
	}
	if c.Vector.BlevePath == "" {
		c.Vector.BlevePath = "./data/vector.bleve"
	}
	if c.Vector.FetchMultiplier == 0 {
		c.Vector.FetchMultiplier = 4
	}

	if c.Rerank == nil {
		c.Rerank = &RerankConfig{}
	}
	if c.Rerank.Provider == "" {
		c.Rerank.Provider = "local"
	}
	if c.Rerank.TimeoutSeconds == 0 {
		c.Rerank.TimeoutSeconds = 30
	}

	if c.Router == nil {
		c.Router = &RouterConfig{}
	}
	if c.Router.MaxPromptLength == 0 {
		c.Router.MaxPromptLength = 4096
	}
	if c.Router.WordThreshold == 0 {
		c.Router.WordThreshold = 20
	}
	if c.Router.SimpleBackend == "" {
		c.Router.SimpleBackend = "ollama-equivalent"
	}
	if c.Router.ComplexBackend == "" {
		c.Router.ComplexBackend = "bedrock-equivalent"
	}
	if c.Router.DefaultBackend == "" {
		c.Router.DefaultBackend = c.Router.ComplexBackend
	}
	if len(c.Router.Allowlist) == 0 {
		c.Router.Allowlist = []string{"bedrock-equivalent", "ollama-equivalent"}
	}

	if c.Invoker == nil {
		c.Invoker = &InvokerConfig{}
	}
	for i := range c.Invoker.Backends {
		b := &c.Invoker.Backends[i]
		if b.FailureThreshold == 0 {
			b.FailureThreshold = 3
		}
		if b.CooldownSeconds == 0 {
			b.CooldownSeconds = 60
		}
		if b.TimeoutSeconds == 0 {
			b.TimeoutSeconds = 120
		}
		if b.MaxTokens == 0 {
			b.MaxTokens = 1024
		}
	}

	if c.Reaper == nil {
		c.Reaper = &ReaperConfig{}
	}
	if c.Reaper.Schedule == "" {
		c.Reaper.Schedule = "0 * * * * *"
	}
	if c.Reaper.SourceRetentionSeconds == 0 {
		c.Reaper.SourceRetentionSeconds = 86400
	}

	if c.Datadog == nil {
		c.Datadog = &DatadogConfig{}
	}
	if c.Datadog.Service == "" {
		c.Datadog.Service = "vellum"
	}
}

// Validate checks cross-field consistency. Defaults must already be applied.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c.ObjectStore,
		validation.Field(&c.ObjectStore.Backend, validation.Required,
			validation.In("s3", "file")),
		validation.Field(&c.ObjectStore.Bucket, validation.Required),
	); err != nil {
		return fmt.Errorf("objectstore: %w", err)
	}

	if err := validation.ValidateStruct(c.OCR,
		validation.Field(&c.OCR.Engine, validation.Required,
			validation.In("easyocr", "paddleocr", "trocr", "docling", "ocrmypdf")),
		validation.Field(&c.OCR.DPI, validation.Min(36), validation.Max(1200)),
	); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}

	if err := validation.ValidateStruct(c.PII,
		validation.Field(&c.PII.Domain, validation.In("Medical", "Legal")),
	); err != nil {
		return fmt.Errorf("pii: %w", err)
	}

	if err := validation.ValidateStruct(c.Vector,
		validation.Field(&c.Vector.DefaultMode, validation.Required,
			validation.In("qdrant", "bleve")),
	); err != nil {
		return fmt.Errorf("vector: %w", err)
	}

	if err := validation.ValidateStruct(c.Database,
		validation.Field(&c.Database.Driver, validation.Required,
			validation.In("postgres", "sqlite")),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	for _, b := range c.Invoker.Backends {
		if err := validation.Validate(b.Name, validation.Required,
			validation.In("bedrock-equivalent", "ollama-equivalent", "openai-compatible")); err != nil {
			return fmt.Errorf("invoker backend %q: %w", b.Name, err)
		}
	}

	return nil
}

// setDefaults canonicalizes every prefix to end with "/".
func (p *PrefixConfig) setDefaults() {
	def := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
		if !strings.HasSuffix(*v, "/") {
			*v += "/"
		}
	}
	def(&p.Raw, "raw")
	def(&p.Office, "office-docs")
	def(&p.PDFRaw, "pdf-raw")
	def(&p.PDFPages, "pdf-pages")
	def(&p.TextPages, "text-pages")
	def(&p.TextPagesRaw, "text-pages-raw")
	def(&p.ScanPages, "scan-pages")
	def(&p.HOCR, "hocr")
	def(&p.TextDocs, "text-docs")
	def(&p.Redacted, "redacted")
	def(&p.Curated, "curated")
}
