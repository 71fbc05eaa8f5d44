package infra_pg_init

import (
	"fmt"
	"log"

	"github.com/ekuzmich/collabrun/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var schema = `
CREATE TABLE IF NOT EXISTS rooms (
    room_key   VARCHAR(16) PRIMARY KEY,
    created_by VARCHAR(255) NOT NULL,
    language   VARCHAR(32) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_participants (
    room_key  VARCHAR(16) NOT NULL REFERENCES rooms(room_key),
    user_id   VARCHAR(255) NOT NULL,
    joined_at TIMESTAMP NOT NULL DEFAULT now(),
    PRIMARY KEY (room_key, user_id)
);

CREATE TABLE IF NOT EXISTS executions (
    id           BIGSERIAL PRIMARY KEY,
    job_id       VARCHAR(64) NOT NULL,
    user_id      VARCHAR(255) NOT NULL,
    room_key     VARCHAR(16),
    language     VARCHAR(32) NOT NULL,
    code         TEXT NOT NULL,
    input        TEXT NOT NULL DEFAULT '',
    output       TEXT NOT NULL DEFAULT '',
    execution_ms BIGINT NOT NULL DEFAULT 0,
    status       VARCHAR(16) NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS executions_user_idx ON executions (user_id, created_at DESC);
`

func MustEstablishConn(cfg config.Postgres) *sqlx.DB {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}

	return db
}

func Migrate(db *sqlx.DB) {
	db.MustExec(schema)
}
