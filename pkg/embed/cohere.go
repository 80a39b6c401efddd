package embed

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

// BedrockInvokeAPI is the slice of the Bedrock runtime client the cohere
// backend uses.
type BedrockInvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// CohereBackend embeds through Bedrock-hosted cohere embedding models.
type CohereBackend struct {
	client BedrockInvokeAPI
	log    hclog.Logger
}

func NewCohereBackend(ctx context.Context, cfg *config.EmbedConfig, log hclog.Logger) (*CohereBackend, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.BedrockRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.BedrockRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return &CohereBackend{
		client: bedrockruntime.NewFromConfig(awsCfg),
		log:    log.Named("embed.cohere"),
	}, nil
}

// NewCohereBackendWithClient builds the backend over an explicit client.
func NewCohereBackendWithClient(client BedrockInvokeAPI, log hclog.Logger) *CohereBackend {
	return &CohereBackend{client: client, log: log.Named("embed.cohere")}
}

func (b *CohereBackend) Name() string { return "cohere" }

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
	Truncate  string   `json:"truncate"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (b *CohereBackend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{
		Texts:     texts,
		InputType: "search_document",
		Truncate:  "END",
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling embedding request: %w", err)
	}

	contentType := "application/json"
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &model,
		Body:        body,
		ContentType: &contentType,
		Accept:      &contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("error invoking embedding model %q: %v: %w",
			model, err, kind.ErrBackendUnavailable)
	}

	var parsed cohereEmbedResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("error decoding embedding response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts",
			len(parsed.Embeddings), len(texts))
	}
	return parsed.Embeddings, nil
}
