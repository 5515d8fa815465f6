package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/usafa/appointment-intake/internal/directory"
	"github.com/usafa/appointment-intake/internal/intake"
	"github.com/usafa/appointment-intake/internal/notify"
)

type RouterConfig struct {
	Logger          zerolog.Logger
	JWTSecret       string
	Publisher       Publisher
	Records         intake.RecordStore
	Lookup          directory.Lookup
	Cache           ConsultationCache
	Hub             *notify.Hub
	PgPool          *pgxpool.Pool
	Redis           *redis.Client
	Mongo           *mongo.Client
	AMQP            *amqp.Connection
	Env             string
	Version         string
	AppointmentsTTL time.Duration
	FormOptionsTTL  time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Mongo, cfg.AMQP, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Patient-facing endpoints, all behind the token gate
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/consultations", createConsultationHandler(cfg.Publisher, cfg.Logger))
		r.Get("/consultations", listConsultationsHandler(cfg.Records, cfg.Cache, cfg.AppointmentsTTL, cfg.Logger))
		r.Get("/consultations/options", formOptionsHandler(cfg.Lookup, cfg.Cache, cfg.FormOptionsTTL, cfg.Logger))
	})

	// Websocket handshake resolves identity itself so the token can also
	// arrive as a query parameter.
	r.Get("/ws", notify.Handler(cfg.Hub, HandshakeIdentity(cfg.JWTSecret)))

	return r
}
