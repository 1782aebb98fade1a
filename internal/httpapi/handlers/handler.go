package handlers

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/apikey"
	"github.com/aris-project/aris/internal/chat"
	"github.com/aris-project/aris/internal/config"
	"github.com/aris-project/aris/internal/registry"
	"github.com/aris-project/aris/internal/store/redisstore"
	"github.com/aris-project/aris/internal/user"
	"github.com/aris-project/aris/internal/vectordb"
)

type Handler struct {
	DB    *gorm.DB
	Cfg   config.Config
	Redis *redisstore.Store
	Log   *zap.Logger

	Users     *user.Service
	Keys      *apikey.Service
	Registry  *registry.Service
	ChatSvc   *chat.Service
	VectorSvc *vectordb.Service
}

// retrieverResolver bridges the vector-database service into the chat
// service's resolver interface.
type retrieverResolver struct {
	svc *vectordb.Service
}

func (r retrieverResolver) Resolve(ctx context.Context, uid, vectorDBID uint64) (chat.Retriever, error) {
	ret, err := r.svc.Resolve(ctx, uid, vectorDBID)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, docs vectordb.DocStore, jobs vectordb.JobPublisher, log *zap.Logger) *Handler {
	vecSvc := vectordb.NewService(db, docs, jobs, nil, log)

	chatSvc := chat.NewService(
		chat.NewRepo(db),
		redisstore.TurnLock{Store: rds, TTL: cfg.ChatLockTTL},
		redisstore.SessionCache{Store: rds},
		retrieverResolver{svc: vecSvc},
		nil,
		log,
		cfg.ChatContextWindowSize,
	)

	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Redis: rds,
		Log:   log,

		Users:     user.NewService(db),
		Keys:      apikey.NewService(db, cfg.APIKeyTTL),
		Registry:  registry.NewService(db, nil, nil),
		ChatSvc:   chatSvc,
		VectorSvc: vecSvc,
	}
}
