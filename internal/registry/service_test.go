package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aris-project/aris/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&models.LLMConfig{}, &models.EmbeddingConfig{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func okProbes() (LLMProber, EmbeddingProber) {
	return func(ctx context.Context, cfg models.LLMConfig) error { return nil },
		func(ctx context.Context, cfg models.EmbeddingConfig) error { return nil }
}

func validLLM(name string) models.LLMConfig {
	return models.LLMConfig{
		LLMName:     name,
		LLMType:     models.LLMTypeOpenAI,
		RequestType: models.RequestTypeMessage,
		BaseURL:     "https://api.example.com/v1",
		APIKey:      "key",
		SysPrompt:   "You are helpful.",
		MaxTokens:   256,
	}
}

func validEmbedding(name string) models.EmbeddingConfig {
	return models.EmbeddingConfig{
		EmbeddingName: name,
		EmbeddingType: models.EmbeddingTypeOpenAI,
		BaseURL:       "https://api.example.com/v1",
		APIKey:        "key",
		ChunkSize:     500,
		EmbedDim:      1536,
	}
}

func TestCreateLLMAdminOnly(t *testing.T) {
	gdb := openTestDB(t)
	pl, pe := okProbes()
	svc := NewService(gdb, pl, pe)

	if _, err := svc.CreateLLM(context.Background(), 1, false, validLLM("gpt")); !errors.Is(err, ErrNoPermission) {
		t.Fatalf("err = %v, want ErrNoPermission", err)
	}

	cfg, err := svc.CreateLLM(context.Background(), 1, true, validLLM("gpt"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cfg.LLMID == 0 || cfg.UploaderID != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestCreateLLMDuplicateTriple(t *testing.T) {
	gdb := openTestDB(t)
	pl, pe := okProbes()
	svc := NewService(gdb, pl, pe)

	if _, err := svc.CreateLLM(context.Background(), 1, true, validLLM("gpt")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateLLM(context.Background(), 1, true, validLLM("gpt")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	// Same name against a different endpoint is a distinct config.
	other := validLLM("gpt")
	other.BaseURL = "https://other.example.com/v1"
	if _, err := svc.CreateLLM(context.Background(), 1, true, other); err != nil {
		t.Fatalf("create at other endpoint: %v", err)
	}
}

func TestCreateLLMProbeFailure(t *testing.T) {
	gdb := openTestDB(t)
	probe := func(ctx context.Context, cfg models.LLMConfig) error { return errors.New("connection refused") }
	_, pe := okProbes()
	svc := NewService(gdb, probe, pe)

	if _, err := svc.CreateLLM(context.Background(), 1, true, validLLM("gpt")); !errors.Is(err, ErrPingFailed) {
		t.Fatalf("err = %v, want ErrPingFailed", err)
	}
	// Nothing persisted on probe failure.
	cfgs, err := svc.ListLLMs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cfgs) != 0 {
		t.Fatalf("persisted %d configs, want 0", len(cfgs))
	}
}

func TestCreateLLMRejectsUnknownEnums(t *testing.T) {
	gdb := openTestDB(t)
	pl, pe := okProbes()
	svc := NewService(gdb, pl, pe)

	bad := validLLM("gpt")
	bad.LLMType = "anthropic"
	if _, err := svc.CreateLLM(context.Background(), 1, true, bad); err == nil {
		t.Fatal("expected error for unknown llm_type")
	}
	bad = validLLM("gpt")
	bad.RequestType = "chat"
	if _, err := svc.CreateLLM(context.Background(), 1, true, bad); err == nil {
		t.Fatal("expected error for unknown request_type")
	}
}

func TestCreateEmbedding(t *testing.T) {
	gdb := openTestDB(t)
	pl, pe := okProbes()
	svc := NewService(gdb, pl, pe)

	if _, err := svc.CreateEmbedding(context.Background(), 1, false, validEmbedding("small")); !errors.Is(err, ErrNoPermission) {
		t.Fatalf("err = %v, want ErrNoPermission", err)
	}

	cfg, err := svc.CreateEmbedding(context.Background(), 1, true, validEmbedding("small"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateEmbedding(context.Background(), 1, true, validEmbedding("small")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}

	got, err := svc.GetEmbedding(context.Background(), cfg.EmbeddingID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChunkSize != 500 || got.EmbedDim != 1536 {
		t.Fatalf("got = %+v", got)
	}

	if _, err := svc.GetEmbedding(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestCreateEmbeddingValidation(t *testing.T) {
	gdb := openTestDB(t)
	pl, pe := okProbes()
	svc := NewService(gdb, pl, pe)

	bad := validEmbedding("small")
	bad.ChunkSize = 0
	if _, err := svc.CreateEmbedding(context.Background(), 1, true, bad); err == nil {
		t.Fatal("expected error for zero chunk_size")
	}
	bad = validEmbedding("small")
	bad.EmbedDim = 0
	if _, err := svc.CreateEmbedding(context.Background(), 1, true, bad); err == nil {
		t.Fatal("expected error for zero embed_dim")
	}
}
