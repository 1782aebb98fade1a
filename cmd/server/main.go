package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aris-project/aris/internal/config"
	"github.com/aris-project/aris/internal/db"
	"github.com/aris-project/aris/internal/httpapi"
	"github.com/aris-project/aris/internal/logger"
	"github.com/aris-project/aris/internal/store/rabbitmq"
	"github.com/aris-project/aris/internal/store/redisstore"
	"github.com/aris-project/aris/internal/vectorstore"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}

	rds, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NegativeCacheTTL)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rds.Close()

	store, err := vectorstore.Open(cfg.VectorDSN)
	if err != nil {
		log.Fatal("connect vector store", zap.Error(err))
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("connect rabbit", zap.Error(err))
	}
	defer pub.Close()

	router := httpapi.NewRouter(gdb, cfg, rds, store, pub, log)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
