package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
}

type Redis struct {
	Host     string
	Port     string
	Password string
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type Engine struct {
	BaseURL string
	APIKey  string
	APIHost string
	Timeout time.Duration
}

type Worker struct {
	Count   int
	Queue   string
	Timeout time.Duration
}

type Config struct {
	HTTP     HTTPServer
	Redis    Redis
	Postgres Postgres
	Engine   Engine
	Worker   Worker
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path to env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		_ = godotenv.Load()
	}

	return &Config{
		HTTP:     *newHTTP(),
		Redis:    *newRedis(),
		Postgres: *newPostgres(),
		Engine:   *newEngine(),
		Worker:   *newWorker(),
	}
}

func newHTTP() *HTTPServer {
	return &HTTPServer{
		Port: getenv("HTTP_PORT", "8080"),
		Host: getenv("HTTP_HOST", "localhost"),
	}
}

func newRedis() *Redis {
	return &Redis{
		Port:     getenv("REDIS_PORT", "6379"),
		Host:     getenv("REDIS_HOST", "redis"),
		Password: getenv("REDIS_PASSWORD", ""),
	}
}

func newPostgres() *Postgres {
	return &Postgres{
		Host:     getenv("DB_HOST", "localhost"),
		Port:     getenv("DB_PORT", "5432"),
		User:     getenv("DB_USER", "admin"),
		Password: getenv("DB_PASSWORD", "shared"),
		DBName:   getenv("DB_NAME", "collabrun"),
		SSLMode:  getenv("DB_SSLMODE", "disable"),
	}
}

func newEngine() *Engine {
	return &Engine{
		BaseURL: getenv("ENGINE_URL", "https://judge0-ce.p.rapidapi.com"),
		APIKey:  getenv("ENGINE_API_KEY", ""),
		APIHost: getenv("ENGINE_API_HOST", "judge0-ce.p.rapidapi.com"),
		Timeout: getenvDuration("ENGINE_TIMEOUT", 30*time.Second),
	}
}

func newWorker() *Worker {
	return &Worker{
		Count:   getenvInt("WORKER_COUNT", 4),
		Queue:   getenv("WORKER_QUEUE", "runs"),
		Timeout: getenvDuration("WORKER_TIMEOUT", 30*time.Second),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getenvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("%s %s is not an int, using default %d", logtag, key, defaultValue)
		return defaultValue
	}
	return n
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("%s %s is not a duration, using default %s", logtag, key, defaultValue)
		return defaultValue
	}
	return d
}
