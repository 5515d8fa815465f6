package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/usafa/appointment-intake/internal/api"
	"github.com/usafa/appointment-intake/internal/cache"
	"github.com/usafa/appointment-intake/internal/config"
	"github.com/usafa/appointment-intake/internal/db"
	"github.com/usafa/appointment-intake/internal/directory"
	"github.com/usafa/appointment-intake/internal/intake"
	"github.com/usafa/appointment-intake/internal/mongodb"
	"github.com/usafa/appointment-intake/internal/notify"
	"github.com/usafa/appointment-intake/internal/rabbitmq"
	redisclient "github.com/usafa/appointment-intake/internal/redis"
)

const version = "0.1.0"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Mongo
	mongoCtx, cancelMongo := context.WithTimeout(rootCtx, 10*time.Second)
	mongoClient, err := mongodb.Connect(mongoCtx, cfg.MongoURI)
	cancelMongo()
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection error")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("error closing mongo")
		}
	}()
	log.Info().Msg("connected to MongoDB")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	// Connect RabbitMQ and declare the shared intake topology
	amqpConn, err := rabbitmq.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer amqpConn.Close()

	publisher, err := rabbitmq.NewPublisher(amqpConn, rabbitmq.IntakeTopology())
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq publisher error")
	}
	defer publisher.Close()
	log.Info().Msg("connected to RabbitMQ")

	hub := notify.NewHub(log)
	lookup := directory.NewPgLookup(pgPool)
	records := intake.NewMongoStore(mongoClient.Database(cfg.MongoDatabase))
	cacheSvc := cache.NewService(rdb)

	// The consumer runs alongside the HTTP server so confirmations reach
	// the websocket clients connected to this instance.
	consumer := intake.NewConsumer(lookup, records, cacheSvc, hub, log)
	go func() {
		if err := consumer.Run(rootCtx, amqpConn, rabbitmq.IntakeTopology(), cfg.WorkerPrefetch); err != nil {
			log.Error().Err(err).Msg("intake consumer stopped")
			stop()
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Logger:          log,
		JWTSecret:       cfg.JWTSecret,
		Publisher:       publisher,
		Records:         records,
		Lookup:          lookup,
		Cache:           cacheSvc,
		Hub:             hub,
		PgPool:          pgPool,
		Redis:           rdb,
		Mongo:           mongoClient,
		AMQP:            amqpConn,
		Env:             cfg.Env,
		Version:         version,
		AppointmentsTTL: cfg.AppointmentsTTL,
		FormOptionsTTL:  cfg.FormOptionsTTL,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}
