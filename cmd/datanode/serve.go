package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/api"
	"github.com/keeperhq/datanode/internal/config"
	"github.com/keeperhq/datanode/internal/data"
	"github.com/keeperhq/datanode/internal/db"
	"github.com/keeperhq/datanode/internal/nilcomm"
	"github.com/keeperhq/datanode/internal/ownership"
	"github.com/keeperhq/datanode/internal/repository"
	"github.com/keeperhq/datanode/internal/service"
	"github.com/keeperhq/datanode/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when enabled, the commit-reveal consumers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	build := config.BuildInfo{
		Version:   version,
		Commit:    commit,
		StartedAt: time.Now().UTC(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(ctx, cfg.MongoURI, cfg.PrimaryDB, cfg.DataDB)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			log.Error("failed to close mongo connection", zap.Error(err))
		}
	}()

	accountRepo := repository.NewAccountRepository(conn.Primary)
	schemaRepo := repository.NewSchemaRepository(conn.Primary)
	queryRepo := repository.NewQueryRepository(conn.Primary)

	store := data.NewStore(conn.Data, log)
	provisioner := data.NewProvisioner(conn.Data)

	cache, err := ownership.NewCache(accountRepo)
	if err != nil {
		return err
	}
	guard := ownership.NewGuard(cache)

	schemaService := service.NewSchemaService(schemaRepo, accountRepo, provisioner, guard, cache, log)
	queryService := service.NewQueryService(queryRepo, schemaRepo, accountRepo, store, guard, cache, log)
	dataService := service.NewDataService(schemaRepo, store, guard, log)

	if cfg.NilcommEnabled {
		if err := startNilcomm(ctx, cfg, store, accountRepo, log); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewServer(schemaService, queryService, dataService, build, log).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}

// startNilcomm connects to the bus, asserts the topology and launches one
// consumer loop per command queue.
func startNilcomm(ctx context.Context, cfg config.Config, store *data.Store, accounts repository.AccountRepository, log *zap.Logger) error {
	keys, err := nilcomm.ParseKeypair(cfg.NodePublicKey, cfg.NodePrivateKey)
	if err != nil {
		return fmt.Errorf("invalid node keypair: %w", err)
	}
	shareSchema, err := uuid.Parse(cfg.CommitSchemaID)
	if err != nil {
		return fmt.Errorf("invalid commit-reveal schema id: %w", err)
	}

	busConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	topologyCh, err := busConn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open topology channel: %w", err)
	}
	if err := nilcomm.DeclareTopology(topologyCh, cfg.DeadLetterTTL); err != nil {
		return err
	}
	topologyCh.Close()

	publisher, err := nilcomm.NewBusPublisher(busConn)
	if err != nil {
		return err
	}

	processor := nilcomm.NewProcessor(store, accounts, publisher, keys, shareSchema, log)
	consumer := nilcomm.NewConsumer(busConn, cfg.ConsumePrefetch, log)

	queues := map[string]nilcomm.HandlerFunc{
		nilcomm.QueueStoreSecret:         processor.HandleStoreSecret,
		nilcomm.QueueStartQueryExecution: processor.HandleStartQueryExecution,
	}
	for queue, handler := range queues {
		go func(queue string, handler nilcomm.HandlerFunc) {
			if err := consumer.Run(ctx, queue, handler); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped", zap.String("queue", queue), zap.Error(err))
			}
		}(queue, handler)
	}

	go func() {
		<-ctx.Done()
		publisher.Close()
		busConn.Close()
	}()

	log.Info("nilcomm consumers started", zap.Int("prefetch", cfg.ConsumePrefetch))
	return nil
}
