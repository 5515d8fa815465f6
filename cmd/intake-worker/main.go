package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

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

// intake-worker is extra consumer capacity for the intake queue. It holds
// no websocket clients, so confirmations it processes are only reachable
// through the normal read path; the api-server instances handle pushes for
// their own connected patients.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "intake-worker").Logger()
	log.Info().Msg("intake-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Int("prefetch", cfg.WorkerPrefetch).Msg("configuration loaded")

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

	// Connect RabbitMQ
	amqpConn, err := rabbitmq.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connection error")
	}
	defer amqpConn.Close()
	log.Info().Msg("connected to RabbitMQ")

	consumer := intake.NewConsumer(
		directory.NewPgLookup(pgPool),
		intake.NewMongoStore(mongoClient.Database(cfg.MongoDatabase)),
		cache.NewService(rdb),
		notify.NewHub(log),
		log,
	)

	if err := consumer.Run(rootCtx, amqpConn, rabbitmq.IntakeTopology(), cfg.WorkerPrefetch); err != nil {
		log.Fatal().Err(err).Msg("consumer error")
	}

	log.Info().Msg("intake-worker stopped")
}
