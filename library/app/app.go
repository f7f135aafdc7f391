package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/config"
	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/handler"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/server"
	"github.com/Astemirdum/library-admin/library/internal/service"
	"github.com/Astemirdum/library-admin/pkg/logger"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "library")

	c, err := client.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("client init", zap.Error(err))
	}

	opts := []service.Option{service.WithLendingPeriod(cfg.LendingPeriodDays)}
	watcher := service.NewWatcher(c, service.NewAggregator(c, log, opts...), log)
	svc := service.NewService(c, watcher, log, opts...)

	sub := c.Auth().OnAuthStateChange(func(event model.AuthEvent, s *model.Session) {
		fields := []zap.Field{zap.String("event", string(event))}
		if s != nil {
			fields = append(fields, zap.String("user", s.User.ID), zap.String("email", s.User.Email))
		}
		log.Info("auth state", fields...)
	})

	h := handler.New(svc, watcher, c.Auth(), log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr", srv.Addr()),
		zap.String("mode", string(c.Mode())))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	sub.Unsubscribe()
	if err = watcher.Close(); err != nil {
		log.Error("watcher.Close", zap.Error(err))
	}
	if err = c.Close(); err != nil {
		log.Error("client.Close", zap.Error(err))
	}
	log.Info("Graceful shutdown finished")
}
