package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/config"
	"github.com/aris-project/aris/internal/httpapi/handlers"
	"github.com/aris-project/aris/internal/httpapi/middleware"
	"github.com/aris-project/aris/internal/store/redisstore"
	"github.com/aris-project/aris/internal/vectordb"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, docs vectordb.DocStore, jobs vectordb.JobPublisher, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, rds, docs, jobs, log)

	r.GET("/ping", h.Ping)

	v1 := r.Group("/v1")
	v1.POST("/user/register", h.Register)
	v1.POST("/user/login", h.Login)

	jwt := middleware.JWTRequired(cfg.JWTSecret)
	sk := middleware.APIKeyRequired(h.Keys)

	// Browser surface (JWT): key management and model registration.
	key := v1.Group("/key", jwt)
	key.POST("", h.GenerateAPIKey)
	key.GET("/keys", h.ListAPIKeys)
	key.DELETE("/:api_key_id/delete", h.RevokeAPIKey)

	// Programmatic surface (secret key).
	session := v1.Group("/session", sk)
	session.POST("", h.CreateSession)
	session.GET("/sessions", h.ListSessions)
	session.GET("/:session_id", h.GetSession)
	session.DELETE("/:session_id/delete", h.DeleteSession)
	session.POST("/:session_id/chat", h.Chat)

	llm := v1.Group("/model/llm")
	llm.POST("", jwt, h.CreateLLM)
	llm.GET("/llms", sk, h.ListLLMs)
	llm.GET("/:llm_id", sk, h.GetLLM)

	embedding := v1.Group("/model/embedding")
	embedding.POST("", jwt, h.CreateEmbedding)
	embedding.GET("/embeddings", sk, h.ListEmbeddings)
	embedding.GET("/:embedding_id", sk, h.GetEmbedding)

	vdb := v1.Group("/vector-db", sk)
	vdb.POST("", h.CreateVectorDB)
	vdb.GET("/vector-dbs", h.ListVectorDBs)
	vdb.GET("/:vector_db_id", h.GetVectorDB)
	vdb.DELETE("/:vector_db_id", h.DeleteVectorDB)
	vdb.POST("/:vector_db_id/files", h.UploadVectorDBFiles)
	vdb.POST("/:vector_db_id/urls", h.UploadVectorDBURLs)

	return r
}
