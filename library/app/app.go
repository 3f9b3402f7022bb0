package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/config"
	"github.com/Astemirdum/silent-library/library/internal/handler"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	"github.com/Astemirdum/silent-library/library/internal/repository"
	"github.com/Astemirdum/silent-library/library/internal/server"
	"github.com/Astemirdum/silent-library/library/internal/service"
	"github.com/Astemirdum/silent-library/library/migrations"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
	"github.com/Astemirdum/silent-library/pkg/kafka"
	"github.com/Astemirdum/silent-library/pkg/logger"
	"github.com/Astemirdum/silent-library/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "library")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	rdb := auth.NewRedisClient(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unavailable, logout revocation is degraded", zap.Error(err))
	}
	revoker := auth.NewRevoker(rdb)
	tokens := auth.NewTokenManager(cfg.Auth)
	files := filestore.New(cfg.Media)
	sender := notify.NewSender(cfg.Mail, log)

	consumeCtx, stopConsume := context.WithCancel(context.Background())
	defer stopConsume()

	var notifier notify.Notifier = notify.NewDirect(sender)
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Error("producer.Close", zap.Error(err))
			}
		}()
		notifier = notify.NewPublisher(producer)

		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.NotificationConsumerGroup)
		if err != nil {
			log.Fatal("kafka.NewConsumer", zap.Error(err))
		}
		defer consumer.Close()
		go kafka.Consume(consumeCtx, consumer, notify.NewConsumer(sender, log), log, kafka.NotificationTopic)
	}

	svc := service.NewService(repo, files, notifier, tokens, revoker, log,
		service.WithLoginURL(cfg.Mail.LoginURL()))
	if err := svc.EnsureAdmin(context.Background(), cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal("EnsureAdmin", zap.Error(err))
	}

	h := handler.New(svc, tokens, revoker, svc, cfg.Media.Root, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
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
	svc.Wait()
	stopConsume()
	if err := rdb.Close(); err != nil {
		log.Error("redis close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
