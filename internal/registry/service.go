package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/embedding"
	"github.com/aris-project/aris/internal/llm"
	"github.com/aris-project/aris/internal/models"
)

var (
	// ErrNoPermission guards every registry mutation: only admins may
	// register models.
	ErrNoPermission = errors.New("no permission to manage models")
	// ErrDuplicate means a config with the same name, base URL and api key
	// already exists.
	ErrDuplicate = errors.New("model config already exists")
	// ErrPingFailed means the upstream endpoint rejected the probe request.
	ErrPingFailed = errors.New("model endpoint probe failed")
	ErrNotFound   = errors.New("model not found")
)

// LLMProber and EmbeddingProber verify a config against its upstream
// before it is persisted. Tests inject fakes.
type (
	LLMProber       func(ctx context.Context, cfg models.LLMConfig) error
	EmbeddingProber func(ctx context.Context, cfg models.EmbeddingConfig) error
)

type Service struct {
	gdb        *gorm.DB
	probeLLM   LLMProber
	probeEmbed EmbeddingProber
}

func NewService(gdb *gorm.DB, probeLLM LLMProber, probeEmbed EmbeddingProber) *Service {
	if probeLLM == nil {
		probeLLM = defaultLLMProbe
	}
	if probeEmbed == nil {
		probeEmbed = defaultEmbedProbe
	}
	return &Service{gdb: gdb, probeLLM: probeLLM, probeEmbed: probeEmbed}
}

func defaultLLMProbe(ctx context.Context, cfg models.LLMConfig) error {
	client, err := llm.New(cfg, 0)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}

func defaultEmbedProbe(ctx context.Context, cfg models.EmbeddingConfig) error {
	client, err := embedding.New(cfg)
	if err != nil {
		return err
	}
	return client.Ping(ctx, cfg.EmbedDim)
}

// CreateLLM registers a chat model config after probing the endpoint.
// Admin only.
func (s *Service) CreateLLM(ctx context.Context, uid uint64, isAdmin bool, cfg models.LLMConfig) (*models.LLMConfig, error) {
	if !isAdmin {
		return nil, ErrNoPermission
	}
	if cfg.LLMType != models.LLMTypeOpenAI {
		return nil, fmt.Errorf("unsupported llm_type %q", cfg.LLMType)
	}
	if cfg.RequestType != models.RequestTypeMessage && cfg.RequestType != models.RequestTypeString {
		return nil, fmt.Errorf("unsupported request_type %q", cfg.RequestType)
	}

	var count int64
	err := s.gdb.WithContext(ctx).Model(&models.LLMConfig{}).Scopes(models.Live).
		Where("llm_name = ? AND base_url = ? AND api_key = ?", cfg.LLMName, cfg.BaseURL, cfg.APIKey).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("check llm: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	if err := s.probeLLM(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPingFailed, err)
	}

	cfg.UploaderID = uid
	if err := s.gdb.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("create llm: %w", err)
	}
	return &cfg, nil
}

func (s *Service) ListLLMs(ctx context.Context) ([]models.LLMConfig, error) {
	var cfgs []models.LLMConfig
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Order("llm_id ASC").Find(&cfgs).Error
	if err != nil {
		return nil, fmt.Errorf("list llms: %w", err)
	}
	return cfgs, nil
}

func (s *Service) GetLLM(ctx context.Context, llmID uint64) (*models.LLMConfig, error) {
	var cfg models.LLMConfig
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("llm_id = ?", llmID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load llm: %w", err)
	}
	return &cfg, nil
}

// CreateEmbedding registers an embedding model config after probing the
// endpoint and checking the configured dimension. Admin only.
func (s *Service) CreateEmbedding(ctx context.Context, uid uint64, isAdmin bool, cfg models.EmbeddingConfig) (*models.EmbeddingConfig, error) {
	if !isAdmin {
		return nil, ErrNoPermission
	}
	if cfg.EmbeddingType != models.EmbeddingTypeOpenAI {
		return nil, fmt.Errorf("unsupported embedding_type %q", cfg.EmbeddingType)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive")
	}
	if cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("embed_dim must be positive")
	}

	var count int64
	err := s.gdb.WithContext(ctx).Model(&models.EmbeddingConfig{}).Scopes(models.Live).
		Where("embedding_name = ? AND base_url = ? AND api_key = ?", cfg.EmbeddingName, cfg.BaseURL, cfg.APIKey).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("check embedding: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	if err := s.probeEmbed(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPingFailed, err)
	}

	cfg.UploaderID = uid
	if err := s.gdb.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	return &cfg, nil
}

func (s *Service) ListEmbeddings(ctx context.Context) ([]models.EmbeddingConfig, error) {
	var cfgs []models.EmbeddingConfig
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Order("embedding_id ASC").Find(&cfgs).Error
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return cfgs, nil
}

func (s *Service) GetEmbedding(ctx context.Context, embeddingID uint64) (*models.EmbeddingConfig, error) {
	var cfg models.EmbeddingConfig
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("embedding_id = ?", embeddingID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding: %w", err)
	}
	return &cfg, nil
}
