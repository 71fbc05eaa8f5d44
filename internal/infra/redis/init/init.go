package infra_redis_init

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ekuzmich/collabrun/internal/config"
	"github.com/redis/go-redis/v9"
)

func MustEstablishConn(cfg config.Redis) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed ", err)
	}

	return client
}
