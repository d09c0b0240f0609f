package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port   string
	AppEnv string

	// Logging
	LogLevel string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Gemini API
	GeminiAPIKeys   []string
	GeminiModel     string
	GeminiTextModel string

	// Studio
	PreviewDebounce time.Duration
	JobTTL          time.Duration
	OutputWebP      bool
	WebPQuality     float32

	// Supabase (optional)
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("⚠️  .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	globalConfig = cfg

	log.Info().Msg("✅ Configuration loaded successfully")
	log.Info().Msgf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	log.Info().Msgf("   Gemini: %s / %s (%d keys)", cfg.GeminiModel, cfg.GeminiTextModel, len(cfg.GeminiAPIKeys))
	log.Info().Msgf("   Preview debounce: %s", cfg.PreviewDebounce)
	if cfg.StorageEnabled() {
		log.Info().Msgf("   Supabase: %s (bucket: %s)", cfg.SupabaseURL, cfg.SupabaseBucket)
	}

	return cfg, nil
}

// FromEnv - .env 로드 없이 현재 환경변수로 Config 생성
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		GeminiAPIKeys:   splitKeys(getEnv("GEMINI_API_KEY", "")),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiTextModel: getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),

		PreviewDebounce: time.Duration(getEnvInt("PREVIEW_DEBOUNCE_MS", 800)) * time.Millisecond,
		JobTTL:          time.Duration(getEnvInt("JOB_TTL_HOURS", 24)) * time.Hour,
		OutputWebP:      getEnvBool("OUTPUT_WEBP", false),
		WebPQuality:     float32(getEnvInt("WEBP_QUALITY", 90)),

		SupabaseURL:        strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "portraits"),
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal().Msg("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.PreviewDebounce < 0 {
		return fmt.Errorf("PREVIEW_DEBOUNCE_MS must not be negative")
	}
	if c.SupabaseURL != "" && c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required when SUPABASE_URL is set")
	}
	return nil
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// StorageEnabled - Supabase 업로드 사용 여부
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != ""
}

// IsProduction - 운영 환경 여부
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// splitKeys - "key1,key2" 형식의 API 키 목록 파싱
func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
