package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/httpapi/middleware"
	"github.com/aris-project/aris/internal/models"
	"github.com/aris-project/aris/internal/registry"
	"github.com/aris-project/aris/internal/store/redisstore"
)

type createLLMReq struct {
	LLMName     string `json:"llm_name" binding:"required"`
	LLMType     string `json:"llm_type" binding:"required"`
	RequestType string `json:"request_type" binding:"required"`
	BaseURL     string `json:"base_url" binding:"required"`
	APIKey      string `json:"api_key"`
	SysName     string `json:"sys_name"`
	SysPrompt   string `json:"sys_prompt"`
	UserName    string `json:"user_name"`
	AIName      string `json:"ai_name"`
	MaxTokens   int    `json:"max_tokens"`
}

func (h *Handler) CreateLLM(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	var req createLLMReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid llm config")
		return
	}

	cfg, err := h.Registry.CreateLLM(c.Request.Context(), uid, middleware.IsAdmin(c), models.LLMConfig{
		LLMName:     req.LLMName,
		LLMType:     models.LLMType(req.LLMType),
		RequestType: models.RequestType(req.RequestType),
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		SysName:     req.SysName,
		SysPrompt:   req.SysPrompt,
		UserName:    req.UserName,
		AIName:      req.AIName,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNoPermission):
			common.Err(c, "No permission to create LLM")
		case errors.Is(err, registry.ErrDuplicate):
			common.Err(c, fmt.Sprintf("LLM name: `%s` already exist", req.LLMName))
		case errors.Is(err, registry.ErrPingFailed):
			common.Err(c, "Ping LLM failed. Check your config.")
		default:
			common.Err(c, err.Error())
		}
		return
	}

	if err := h.Redis.Invalidate(c.Request.Context(), redisstore.LLMListKey()); err != nil {
		h.Log.Warn("invalidate llm list cache", zap.Error(err))
	}
	common.OK(c, cfg)
}

func (h *Handler) ListLLMs(c *gin.Context) {
	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.LLMListKey(), h.Cfg.RegistryCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			cfgs, err := h.Registry.ListLLMs(ctx)
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(cfgs)
			return string(b), true, err
		})
	if err != nil {
		h.Log.Error("list llms failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, json.RawMessage(raw))
}

func (h *Handler) GetLLM(c *gin.Context) {
	llmID, err := strconv.ParseUint(c.Param("llm_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid llm id")
		return
	}

	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.LLMKey(llmID), h.Cfg.RegistryCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			cfg, err := h.Registry.GetLLM(ctx, llmID)
			if errors.Is(err, registry.ErrNotFound) {
				return "", false, nil
			}
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(cfg)
			return string(b), true, err
		})
	if errors.Is(err, redisstore.ErrNotExist) {
		common.Err(c, "LLM not exist")
		return
	}
	if err != nil {
		h.Log.Error("get llm failed", zap.Uint64("llm_id", llmID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, json.RawMessage(raw))
}

type createEmbeddingReq struct {
	EmbeddingName string `json:"embedding_name" binding:"required"`
	EmbeddingType string `json:"embedding_type" binding:"required"`
	BaseURL       string `json:"base_url" binding:"required"`
	APIKey        string `json:"api_key"`
	ChunkSize     int    `json:"chunk_size" binding:"required"`
	EmbedDim      int    `json:"embed_dim" binding:"required"`
}

func (h *Handler) CreateEmbedding(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	var req createEmbeddingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid embedding config")
		return
	}

	cfg, err := h.Registry.CreateEmbedding(c.Request.Context(), uid, middleware.IsAdmin(c), models.EmbeddingConfig{
		EmbeddingName: req.EmbeddingName,
		EmbeddingType: models.EmbeddingType(req.EmbeddingType),
		BaseURL:       req.BaseURL,
		APIKey:        req.APIKey,
		ChunkSize:     req.ChunkSize,
		EmbedDim:      req.EmbedDim,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNoPermission):
			common.Err(c, "No permission to create Embedding model")
		case errors.Is(err, registry.ErrDuplicate):
			common.Err(c, fmt.Sprintf("Embedding name: `%s` already exist", req.EmbeddingName))
		case errors.Is(err, registry.ErrPingFailed):
			common.Err(c, "Ping Embedding failed. Check your config.")
		default:
			common.Err(c, err.Error())
		}
		return
	}

	if err := h.Redis.Invalidate(c.Request.Context(), redisstore.EmbeddingListKey()); err != nil {
		h.Log.Warn("invalidate embedding list cache", zap.Error(err))
	}
	common.OK(c, cfg)
}

func (h *Handler) ListEmbeddings(c *gin.Context) {
	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.EmbeddingListKey(), h.Cfg.RegistryCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			cfgs, err := h.Registry.ListEmbeddings(ctx)
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(cfgs)
			return string(b), true, err
		})
	if err != nil {
		h.Log.Error("list embeddings failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, json.RawMessage(raw))
}

func (h *Handler) GetEmbedding(c *gin.Context) {
	embeddingID, err := strconv.ParseUint(c.Param("embedding_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid embedding id")
		return
	}

	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.EmbeddingKey(embeddingID), h.Cfg.RegistryCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			cfg, err := h.Registry.GetEmbedding(ctx, embeddingID)
			if errors.Is(err, registry.ErrNotFound) {
				return "", false, nil
			}
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(cfg)
			return string(b), true, err
		})
	if errors.Is(err, redisstore.ErrNotExist) {
		common.Err(c, "Embedding model not exist")
		return
	}
	if err != nil {
		h.Log.Error("get embedding failed", zap.Uint64("embedding_id", embeddingID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, json.RawMessage(raw))
}
