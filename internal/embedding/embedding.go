package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aris-project/aris/internal/models"
)

// Client converts text into vector representations.
type Client interface {
	EmbedTexts(ctx context.Context, inputs []string) ([][]float32, error)
	// Ping embeds a trivial string and checks the vector length against the
	// configured dimensionality.
	Ping(ctx context.Context, wantDim int) error
}

// New dispatches on the closed EmbeddingType set.
func New(cfg models.EmbeddingConfig) (Client, error) {
	switch cfg.EmbeddingType {
	case models.EmbeddingTypeOpenAI:
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.EmbeddingName, nil), nil
	default:
		return nil, fmt.Errorf("embedding: unknown embedding type %q", cfg.EmbeddingType)
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		model:      strings.TrimSpace(model),
		httpClient: httpClient,
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const batchSize = 32

// EmbedTexts batches the inputs and returns one vector per input, in order.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("embedding: no inputs provided")
	}
	if e.baseURL == "" {
		return nil, errors.New("embedding: missing base url")
	}
	if e.model == "" {
		return nil, errors.New("embedding: missing model")
	}

	vectors := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		resp, err := e.createEmbeddings(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(vectors), len(inputs))
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) createEmbeddings(ctx context.Context, batch []string) (*embeddingsResponse, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: batch})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding: endpoint status %d", resp.StatusCode)
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, errors.New(decoded.Error.Message)
	}
	return &decoded, nil
}

func (e *OpenAIEmbedder) Ping(ctx context.Context, wantDim int) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	vecs, err := e.EmbedTexts(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) != 1 || len(vecs[0]) != wantDim {
		return fmt.Errorf("embedding: expected %d dimensions, got %d", wantDim, len(vecs[0]))
	}
	return nil
}
