package config

import (
	"os"
	"testing"
)

func TestLoadAppliesIngestDefaults(t *testing.T) {
	for _, key := range []string{
		"WATCH_DEBOUNCE_WINDOW_MS", "WATCH_MAX_BATCH_EVENTS",
		"SCAN_FOLDER_WORKERS", "SCAN_BATCH_SIZE", "SCAN_MAX_RETRY_ATTEMPTS",
		"SCAN_STALE_FOLDER_HOURS", "SCAN_ERROR_RETRY_THRESHOLD",
		"QUEUE_MAX_ATTEMPTS", "QUEUE_REAPER_INTERVAL_S", "QUEUE_BACKOFF_CAP_S",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Watch.DebounceWindowMS != 250 {
		t.Errorf("DebounceWindowMS = %d, want 250", cfg.Watch.DebounceWindowMS)
	}
	if cfg.Watch.MaxBatchEvents != 1024 {
		t.Errorf("MaxBatchEvents = %d, want 1024", cfg.Watch.MaxBatchEvents)
	}
	if cfg.Scan.FolderWorkers != 4 {
		t.Errorf("FolderWorkers = %d, want 4", cfg.Scan.FolderWorkers)
	}
	if cfg.Scan.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Scan.BatchSize)
	}
	if cfg.Scan.MaxRetryAttempts != 3 {
		t.Errorf("MaxRetryAttempts = %d, want 3", cfg.Scan.MaxRetryAttempts)
	}
	if cfg.Scan.StaleFolderHours != 24 {
		t.Errorf("StaleFolderHours = %d, want 24", cfg.Scan.StaleFolderHours)
	}
	if cfg.Scan.ErrorRetryThreshold != 3 {
		t.Errorf("ErrorRetryThreshold = %d, want 3", cfg.Scan.ErrorRetryThreshold)
	}
	if cfg.Queue.MaxAttempts != 10 {
		t.Errorf("Queue.MaxAttempts = %d, want 10", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.ReaperIntervalS != 30 {
		t.Errorf("ReaperIntervalS = %d, want 30", cfg.Queue.ReaperIntervalS)
	}
	if cfg.Queue.BackoffCapS != 120 {
		t.Errorf("BackoffCapS = %d, want 120", cfg.Queue.BackoffCapS)
	}
}

func TestLoadEnforcesMinimumDebounceWindow(t *testing.T) {
	os.Setenv("WATCH_DEBOUNCE_WINDOW_MS", "0")
	defer os.Unsetenv("WATCH_DEBOUNCE_WINDOW_MS")

	cfg := Load()
	if cfg.Watch.DebounceWindowMS != 1 {
		t.Errorf("DebounceWindowMS = %d, want floor of 1", cfg.Watch.DebounceWindowMS)
	}
}

func TestLoadReadsOverriddenScanWorkers(t *testing.T) {
	os.Setenv("SCAN_FOLDER_WORKERS", "16")
	defer os.Unsetenv("SCAN_FOLDER_WORKERS")

	cfg := Load()
	if cfg.Scan.FolderWorkers != 16 {
		t.Errorf("FolderWorkers = %d, want 16", cfg.Scan.FolderWorkers)
	}
}
