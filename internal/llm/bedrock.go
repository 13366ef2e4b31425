package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// bedrockEmbedder calls Amazon Titan text embedding models through the
// Bedrock runtime. It satisfies the langchaingo embeddings.Embedder
// interface so the rest of the pipeline does not care which backend runs.
type bedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
}

func newBedrockEmbedder(ctx context.Context, region, modelID string) (*bedrockEmbedder, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &bedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}, nil
}

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedDocuments embeds each text with one InvokeModel call; Titan models
// accept a single input per request.
func (b *bedrockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := b.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (b *bedrockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", b.modelID, err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode titan response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", b.modelID)
	}
	return resp.Embedding, nil
}
