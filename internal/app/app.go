package app

import (
	"github.com/ekuzmich/collabrun/internal/config"
	http_code "github.com/ekuzmich/collabrun/internal/delivery/http/code"
	http_collab "github.com/ekuzmich/collabrun/internal/delivery/http/collab"
	http_init "github.com/ekuzmich/collabrun/internal/delivery/http/init"
	ws_collab "github.com/ekuzmich/collabrun/internal/delivery/ws/collab"
	infra_engine "github.com/ekuzmich/collabrun/internal/infra/engine"
	infra_pg_init "github.com/ekuzmich/collabrun/internal/infra/postgres/init"
	infra_postgres_execution "github.com/ekuzmich/collabrun/internal/infra/postgres/execution"
	infra_postgres_room "github.com/ekuzmich/collabrun/internal/infra/postgres/room"
	infra_redis_bus "github.com/ekuzmich/collabrun/internal/infra/redis/bus"
	infra_redis_init "github.com/ekuzmich/collabrun/internal/infra/redis/init"
	infra_redis_queue "github.com/ekuzmich/collabrun/internal/infra/redis/queue"
	usecase_room "github.com/ekuzmich/collabrun/internal/usecase/room"
	usecase_run "github.com/ekuzmich/collabrun/internal/usecase/run"
)

// Go starts a gateway instance: HTTP API plus websocket sessions. Any
// number of instances can run side by side; the redis bus stitches their
// room fanout together.
func Go(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)
	infra_pg_init.Migrate(pgConn)

	eventBus := infra_redis_bus.New(redisConn, nil)
	queue := infra_redis_queue.New(redisConn, cfg.Worker.Queue)
	engine := infra_engine.New(cfg.Engine)

	roomRepository := infra_postgres_room.New(pgConn)
	recordRepository := infra_postgres_execution.New(pgConn)

	roomUC := usecase_room.New(roomRepository)
	runUC := usecase_run.New(queue, engine, recordRepository)

	hub := ws_collab.NewHub(eventBus, nil)
	gateway := ws_collab.NewGateway(hub, roomUC, runUC)

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_collab.New(roomUC))
	controllerPool.Add(http_code.New(runUC))
	controllerPool.Add(gateway)

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
