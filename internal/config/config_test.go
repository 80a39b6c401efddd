package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vellum.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

objectstore {
  backend = "file"
  bucket  = "test-docs"
  root    = "/tmp/vellum"
}

prefixes {
  raw = "incoming"
}

kafka {
  brokers            = ["localhost:9092"]
  notification_topic = "docs.events"
}

ocr {
  engine = "ocrmypdf"
  dpi    = 200
}

router {
  word_threshold = 5
}

invoker {
  backend "ollama-equivalent" {
    endpoints = ["http://localhost:11434"]
    model     = "llama3"
  }
  backend "bedrock-equivalent" {
    region = "us-east-1"
    model  = "anthropic.claude-3-haiku-20240307-v1:0"
  }
}
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file", cfg.ObjectStore.Backend)
	assert.Equal(t, "test-docs", cfg.ObjectStore.Bucket)

	// Custom prefix is canonicalized, untouched prefixes get defaults.
	assert.Equal(t, "incoming/", cfg.Prefixes.Raw)
	assert.Equal(t, "pdf-pages/", cfg.Prefixes.PDFPages)
	assert.Equal(t, "text-pages-raw/", cfg.Prefixes.TextPagesRaw)
	assert.Equal(t, "text-docs/", cfg.Prefixes.TextDocs)

	assert.Equal(t, "docs.events", cfg.Kafka.NotificationTopic)
	assert.Equal(t, "vellum.invocations", cfg.Kafka.InvocationTopic)

	assert.Equal(t, "ocrmypdf", cfg.OCR.Engine)
	assert.Equal(t, 200, cfg.OCR.DPI)

	assert.Equal(t, 5, cfg.Router.WordThreshold)
	assert.Equal(t, "ollama-equivalent", cfg.Router.SimpleBackend)

	require.Len(t, cfg.Invoker.Backends, 2)
	assert.Equal(t, 3, cfg.Invoker.Backends[0].FailureThreshold)
	assert.Equal(t, 60, cfg.Invoker.Backends[0].CooldownSeconds)
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, ``))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "s3", cfg.ObjectStore.Backend)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 300, cfg.Redact.WaitTimeoutSeconds)
	assert.Equal(t, 20, cfg.Router.WordThreshold)
	assert.Equal(t, 4096, cfg.Router.MaxPromptLength)
	assert.Equal(t, []string{"bedrock-equivalent", "ollama-equivalent"}, cfg.Router.Allowlist)
	assert.Equal(t, "qdrant", cfg.Vector.DefaultMode)
}

func TestNewConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		hcl  string
	}{
		{
			name: "bad objectstore backend",
			hcl:  `objectstore { backend = "ftp" }`,
		},
		{
			name: "bad ocr engine",
			hcl:  `ocr { engine = "tesseract9000" }`,
		},
		{
			name: "bad invoker backend name",
			hcl: `invoker {
  backend "gpt-equivalent" {}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, tt.hcl))
			assert.Error(t, err)
		})
	}
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig("/nonexistent/vellum.hcl")
	assert.Error(t, err)

	_, err = NewConfig("")
	assert.Error(t, err)
}
