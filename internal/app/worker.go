package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ekuzmich/collabrun/internal/config"
	infra_engine "github.com/ekuzmich/collabrun/internal/infra/engine"
	infra_pg_init "github.com/ekuzmich/collabrun/internal/infra/postgres/init"
	infra_postgres_execution "github.com/ekuzmich/collabrun/internal/infra/postgres/execution"
	infra_redis_bus "github.com/ekuzmich/collabrun/internal/infra/redis/bus"
	infra_redis_init "github.com/ekuzmich/collabrun/internal/infra/redis/init"
	infra_redis_queue "github.com/ekuzmich/collabrun/internal/infra/redis/queue"
	"github.com/ekuzmich/collabrun/internal/worker"
)

// GoWorker starts an execution worker pool and blocks until SIGINT/SIGTERM.
// The consumer name is stable per host so a restarted worker reclaims jobs
// its crashed predecessor left behind.
func GoWorker(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)
	infra_pg_init.Migrate(pgConn)

	queue := infra_redis_queue.New(redisConn, cfg.Worker.Queue)
	eventBus := infra_redis_bus.New(redisConn, nil)
	engine := infra_engine.New(cfg.Engine)
	records := infra_postgres_execution.New(pgConn)

	consumer := consumerName()
	pool := worker.New(queue, engine, records, eventBus, consumer,
		cfg.Worker.Count, cfg.Worker.Timeout, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker pool started", "consumer", consumer, "workers", cfg.Worker.Count)
	pool.Run(ctx)
	slog.Info("worker pool stopped")
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-" + uuid.NewString()
	}
	return "worker-" + host
}
