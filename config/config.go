package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL       string
	RedisURL          string // опционально: мост событий между инстансами
	JWTSecretKey      string
	AdminKeyHash      string // bcrypt-хеш ключа для /admin/* маршрутов
	ServerPort        int
	GameStartOffset   time.Duration // время суток, на которое планируется ежедневная игра
	SchedulerInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080" // Порт по умолчанию
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	startOffset, err := parseStartTime(getEnvOrDefault("GAME_START_TIME", "12:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid GAME_START_TIME environment variable: %w", err)
	}

	interval := 30 * time.Second
	if intervalStr := os.Getenv("SCHEDULER_INTERVAL"); intervalStr != "" {
		interval, err = time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL environment variable: %w", err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", interval)
		}
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecretKey:      jwtKey,
		AdminKeyHash:      os.Getenv("ADMIN_KEY_HASH"),
		ServerPort:        port,
		GameStartOffset:   startOffset,
		SchedulerInterval: interval,
	}

	return cfg, nil
}

// parseStartTime превращает "HH:MM" в смещение от полуночи.
func parseStartTime(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
