package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type HealthHandler struct {
	pgPool  *pgxpool.Pool
	redis   *redis.Client
	mongo   *mongo.Client
	amqp    *amqp.Connection
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, mc *mongo.Client, ac *amqp.Connection, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:  pgPool,
		redis:   rdb,
		mongo:   mc,
		amqp:    ac,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	// Postgres and Mongo down means requests cannot be processed at all.
	check := func(name string, fn func(context.Context) error, fatal bool) {
		depCtx, depCancel := context.WithTimeout(ctx, time.Second)
		err := fn(depCtx)
		depCancel()
		if err != nil {
			deps[name] = "down"
			if fatal || status == "error" {
				status = "error"
			} else {
				status = "degraded"
			}
			return
		}
		deps[name] = "ok"
	}

	check("postgres", func(c context.Context) error { return h.pgPool.Ping(c) }, true)
	check("mongo", func(c context.Context) error { return h.mongo.Ping(c, readpref.Primary()) }, true)
	check("redis", func(c context.Context) error { return h.redis.Ping(c).Err() }, false)
	check("rabbitmq", func(context.Context) error {
		if h.amqp.IsClosed() {
			return amqp.ErrClosed
		}
		return nil
	}, true)

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
