package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aris-project/aris/internal/apikey"
	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/httpapi/middleware"
)

func (h *Handler) GenerateAPIKey(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	key, err := h.Keys.Generate(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, apikey.ErrTooMany) {
			common.Err(c, "You can only generate 5 api keys at most")
			return
		}
		h.Log.Error("generate api key failed", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OK(c, key)
}

func (h *Handler) ListAPIKeys(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	keys, err := h.Keys.List(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("list api keys failed", zap.Uint64("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OK(c, gin.H{"api_keys": keys})
}

func (h *Handler) RevokeAPIKey(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Unauthorized(c, "Invalid token")
		return
	}

	akID, err := strconv.ParseUint(c.Param("api_key_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid api key id")
		return
	}

	err = h.Keys.Revoke(c.Request.Context(), uid, middleware.IsAdmin(c), akID)
	if err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			common.Err(c, "Api key not exist")
			return
		}
		h.Log.Error("revoke api key failed", zap.Uint64("uid", uid), zap.Uint64("ak_id", akID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OKMsg(c, "Api key revoked", nil)
}
