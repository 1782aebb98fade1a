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

	"github.com/aris-project/aris/internal/chat"
	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/httpapi/middleware"
	"github.com/aris-project/aris/internal/store/redisstore"
	"github.com/aris-project/aris/internal/vectordb"
)

func (h *Handler) CreateSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, chat.ErrSessionListFull) {
			common.Err(c, "Your session list is full(40), please delete some sessions first")
			return
		}
		h.Log.Error("create session failed", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID})
}

// pageOf slices one page out of the full session list.
func pageOf(all []chat.SessionSummary, pageID, perPageNum int) []chat.SessionSummary {
	start := pageID * perPageNum
	if start >= len(all) {
		return []chat.SessionSummary{}
	}
	end := start + perPageNum
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	pageID, _ := strconv.Atoi(c.DefaultQuery("page_id", "0"))
	perPageNum, _ := strconv.Atoi(c.DefaultQuery("per_page_num", "20"))
	if pageID < 0 {
		pageID = 0
	}
	if perPageNum <= 0 || perPageNum > 100 {
		perPageNum = 20
	}

	// The session cap keeps the whole list small, so the cache holds it in
	// full and each request slices its own page out of it.
	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.SessionListKey(uid), h.Cfg.SessionCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			sessions, err := h.ChatSvc.ListSessions(ctx, uid, 0, chat.MaxLiveSessions)
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(sessions)
			return string(b), true, err
		})
	if err == nil {
		var all []chat.SessionSummary
		if err := json.Unmarshal([]byte(raw), &all); err == nil {
			common.OK(c, pageOf(all, pageID, perPageNum))
			return
		}
	}
	h.Log.Warn("session list cache", zap.Uint64("uid", uid), zap.Error(err))

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, pageID, perPageNum)
	if err != nil {
		h.Log.Error("list sessions failed", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	common.OK(c, sessions)
}

func (h *Handler) GetSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("session_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid session id")
		return
	}

	// The cache key is per session, not per user, so the owner's uid rides
	// along in the cached payload and is re-checked on hits. The loader
	// resolves the owner itself: a stranger's lookup must not plant a
	// not_exist marker for a session that does exist.
	type cachedDetail struct {
		UID    uint64             `json:"uid"`
		Detail chat.SessionDetail `json:"detail"`
	}

	raw, err := h.Redis.GetOrLoad(c.Request.Context(), redisstore.SessionKey(sessionID), h.Cfg.SessionCacheTTL,
		func(ctx context.Context) (string, bool, error) {
			owner, detail, err := h.ChatSvc.GetSessionDetailByID(ctx, sessionID)
			if errors.Is(err, chat.ErrSessionNotFound) {
				return "", false, nil
			}
			if err != nil {
				return "", false, err
			}
			b, err := json.Marshal(cachedDetail{UID: owner, Detail: *detail})
			return string(b), true, err
		})
	if errors.Is(err, redisstore.ErrNotExist) {
		common.Err(c, "Session not exist")
		return
	}
	if err != nil {
		h.Log.Error("get session failed",
			zap.Uint64("uid", uid), zap.Uint64("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	var cached cachedDetail
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}
	if cached.UID != uid {
		common.Err(c, "Session not exist")
		return
	}
	common.OK(c, cached.Detail)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("session_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid session id")
		return
	}

	err = h.ChatSvc.DeleteSession(c.Request.Context(), uid, middleware.IsAdmin(c), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Err(c, "Session not exist")
			return
		}
		h.Log.Error("delete session failed",
			zap.Uint64("uid", uid), zap.Uint64("session_id", sessionID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OKMsg(c, "Session deleted", nil)
}

type chatReq struct {
	LLMName     string  `json:"llm_name"`
	Temperature float64 `json:"temperature"`
	Message     string  `json:"message" binding:"required"`
	VectorDBID  uint64  `json:"vector_db_id"`
}

// Chat runs one streaming turn over SSE. Precondition failures are
// reported as a plain JSON envelope before any stream bytes go out; once
// streaming starts, faults arrive as terminal error frames.
func (h *Handler) Chat(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	sessionID, err := strconv.ParseUint(c.Param("session_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid session id")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message required")
		return
	}

	events, err := h.ChatSvc.Chat(c.Request.Context(), chat.TurnRequest{
		UID:         uid,
		SessionID:   sessionID,
		LLMName:     req.LLMName,
		Temperature: req.Temperature,
		Message:     req.Message,
		VectorDBID:  req.VectorDBID,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrBusy):
			common.Err(c, "You are chatting, please wait a moment")
		case errors.Is(err, chat.ErrSessionNotFound):
			common.Err(c, "Session not exist")
		case errors.Is(err, chat.ErrLLMNotFound):
			common.Err(c, "LLM not exist")
		case errors.Is(err, chat.ErrInitFailed):
			common.Err(c, "Chat init failed")
		case errors.Is(err, vectordb.ErrNotFound):
			common.Err(c, "Vector database not exist")
		case errors.Is(err, vectordb.ErrEmpty):
			common.Err(c, "Vector DB is empty, please upload data first")
		case errors.Is(err, vectordb.ErrEmbeddingNotFound):
			common.Err(c, "Embedding model not exist")
		default:
			h.Log.Error("chat turn failed",
				zap.Uint64("uid", uid), zap.Uint64("session_id", sessionID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				fmt.Fprintf(c.Writer, "data: {\"status\":\"error\",\"delta\":\"\",\"extras\":{\"message\":\"encode failed\"}}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", b)
			flusher.Flush()

		case <-ctx.Done():
			// Undelivered events fall through on the canceled context;
			// the streaming goroutine still persists and releases the
			// lock.
			return
		}
	}
}
