package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aris-project/aris/internal/auth"
	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/user"
)

const tokenTTL = 24 * time.Hour

type credentialsReq struct {
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "user_name and password required")
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrUserExists) {
			common.Err(c, "User already exist")
			return
		}
		h.Log.Error("register failed", zap.String("user_name", req.UserName), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OKMsg(c, "Register successfully", gin.H{"uid": u.UID})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "user_name and password required")
		return
	}

	u, err := h.Users.Login(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrBadCredentials) {
			common.Err(c, "User not exist or password incorrect")
			return
		}
		h.Log.Error("login failed", zap.String("user_name", req.UserName), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	level := 0
	if u.IsAdmin {
		level = 1
	}
	token, err := auth.SignToken(u.UID, level, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		h.Log.Error("sign token failed", zap.Uint64("uid", u.UID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
		return
	}

	common.OKMsg(c, "Login successfully", gin.H{"uid": u.UID, "token": token})
}
