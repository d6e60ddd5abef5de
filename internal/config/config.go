package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Generation backends.
const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

// Store backends.
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config holds the configuration for the application.
type Config struct {
	GeminiAPIKey          string
	GeminiModel           string
	GeminiBaseURL         string
	GenerationBackend     string
	GenerationMaxAttempts int

	StoreBackend       string
	DatabasePath       string
	FirestoreProjectID string
	AppID              string
	UserID             string
	ShareSecret        string

	LogLevel  string
	LogFormat string
	Port      string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment take precedence.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	backend := envOrDefault("GENERATION_BACKEND", BackendREST)
	if backend != BackendREST && backend != BackendSDK {
		return nil, fmt.Errorf("invalid GENERATION_BACKEND: %q (want %s or %s)", backend, BackendREST, BackendSDK)
	}

	maxAttempts, err := strconv.Atoi(envOrDefault("GENERATION_MAX_ATTEMPTS", "3"))
	if err != nil || maxAttempts < 1 {
		return nil, fmt.Errorf("invalid GENERATION_MAX_ATTEMPTS: must be a positive integer")
	}

	storeBackend := envOrDefault("STORE_BACKEND", StoreSQLite)
	if storeBackend != StoreSQLite && storeBackend != StoreFirestore {
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q (want %s or %s)", storeBackend, StoreSQLite, StoreFirestore)
	}

	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if storeBackend == StoreFirestore && projectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_ID environment variable not set")
	}

	allowed, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		adminID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return &Config{
		GeminiAPIKey:           geminiAPIKey,
		GeminiModel:            envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:          envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenerationBackend:      backend,
		GenerationMaxAttempts:  maxAttempts,
		StoreBackend:           storeBackend,
		DatabasePath:           envOrDefault("DATABASE_PATH", "data/dinnerplan.db"),
		FirestoreProjectID:     projectID,
		AppID:                  envOrDefault("APP_ID", "default-app-id"),
		UserID:                 envOrDefault("USER_ID", "default_user"),
		ShareSecret:            os.Getenv("SHARE_SECRET"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("LOG_FORMAT", "json"),
		Port:                   envOrDefault("PORT", "8080"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        adminID,
	}, nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
