package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port           int
	DatabaseURL    string
	JWTSecret      string
	DataDir        string
	CacheServerURL string
	CacheServerKey string
	FFmpegPath     string
	FFprobePath    string
	HWAccelType    string
	MaxTranscodes  int

	Watch WatchConfig
	Scan  ScanConfig
	Queue QueueConfig
}

// WatchConfig tunes the FS watch debounce pipeline (C5).
type WatchConfig struct {
	DebounceWindowMS int
	MaxBatchEvents   int
}

// ScanConfig tunes the folder scanner and its eligibility/retry rules
// (C2, C7).
type ScanConfig struct {
	FolderWorkers       int
	BatchSize           int
	MaxRetryAttempts    int
	StaleFolderHours    int
	ErrorRetryThreshold int
}

// QueueConfig tunes the persistent job queue's retry and reaper
// behavior (C4).
type QueueConfig struct {
	MaxAttempts     int
	ReaperIntervalS int
	BackoffCapS     int
}

func Load() *Config {
	return &Config{
		Port:           envInt("PORT", 8080),
		DatabaseURL:    env("DATABASE_URL", "postgres://cinevault:cinevault@db:5432/cinevault?sslmode=disable"),
		JWTSecret:      env("JWT_SECRET", "change-me-in-production"),
		DataDir:        env("DATA_DIR", "/data"),
		CacheServerURL: env("CACHE_SERVER_URL", ""),
		CacheServerKey: env("CACHE_SERVER_API_KEY", ""),
		FFmpegPath:     env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    env("FFPROBE_PATH", "ffprobe"),
		HWAccelType:    env("HW_ACCEL_TYPE", "cpu"),
		MaxTranscodes:  envInt("MAX_TRANSCODES", 2),

		Watch: WatchConfig{
			DebounceWindowMS: max(envInt("WATCH_DEBOUNCE_WINDOW_MS", 250), 1),
			MaxBatchEvents:   envInt("WATCH_MAX_BATCH_EVENTS", 1024),
		},
		Scan: ScanConfig{
			FolderWorkers:       envInt("SCAN_FOLDER_WORKERS", 4),
			BatchSize:           envInt("SCAN_BATCH_SIZE", 100),
			MaxRetryAttempts:    envInt("SCAN_MAX_RETRY_ATTEMPTS", 3),
			StaleFolderHours:    envInt("SCAN_STALE_FOLDER_HOURS", 24),
			ErrorRetryThreshold: envInt("SCAN_ERROR_RETRY_THRESHOLD", 3),
		},
		Queue: QueueConfig{
			MaxAttempts:     envInt("QUEUE_MAX_ATTEMPTS", 10),
			ReaperIntervalS: envInt("QUEUE_REAPER_INTERVAL_S", 30),
			BackoffCapS:     envInt("QUEUE_BACKOFF_CAP_S", 120),
		},
	}
}

func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "cache_server_url":
			c.CacheServerURL = value
		case "cache_server_api_key":
			c.CacheServerKey = value
		case "hw_accel_type":
			c.HWAccelType = value
		case "max_transcodes":
			if v, err := strconv.Atoi(value); err == nil {
				c.MaxTranscodes = v
			}
		}
	}
}

func (c *Config) CacheServerEnabled() bool {
	return c.CacheServerURL != "" && c.CacheServerKey != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
