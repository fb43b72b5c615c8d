package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the backend server.
// Values come from environment variables (prefix ASR_), with defaults
// suitable for local development.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Minio    MinioConfig
	Workers  WorkersConfig
	Callback CallbackConfig
	Auth     AuthConfig

	// FallbackLanguage is used when a worker result carries no language code.
	FallbackLanguage string
	LogLevel         string
}

type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

type WorkersConfig struct {
	WhisperURL string
	Wav2vecURL string

	// DispatchTimeout bounds a single transcription request to a worker.
	// Inference on long recordings is slow, so this is on the order of
	// tens of minutes, not seconds.
	DispatchTimeout time.Duration
}

type CallbackConfig struct {
	// URL is the orchestrator base URL the worker shell reports back to.
	URL             string
	MaxAttempts     int
	BaseDelay       time.Duration
	InitialGrace    time.Duration
	MaxPayloadBytes int
}

type AuthConfig struct {
	JWTSecret string
}

// Load reads configuration from the environment via viper.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "greek_asr")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.bucket_name", "audio-files")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("workers.whisper_url", "http://localhost:8001")
	v.SetDefault("workers.wav2vec_url", "http://localhost:8002")
	v.SetDefault("workers.dispatch_timeout", "30m")

	v.SetDefault("callback.url", "http://localhost:8080")
	v.SetDefault("callback.max_attempts", 5)
	v.SetDefault("callback.base_delay", "1s")
	v.SetDefault("callback.initial_grace", "500ms")
	v.SetDefault("callback.max_payload_bytes", 512*1024)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("fallback_language", "el")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		Server: ServerConfig{
			Address:      v.GetString("server.address"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetString("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		Minio: MinioConfig{
			Endpoint:        v.GetString("minio.endpoint"),
			AccessKeyID:     v.GetString("minio.access_key_id"),
			SecretAccessKey: v.GetString("minio.secret_access_key"),
			BucketName:      v.GetString("minio.bucket_name"),
			UseSSL:          v.GetBool("minio.use_ssl"),
		},
		Workers: WorkersConfig{
			WhisperURL:      v.GetString("workers.whisper_url"),
			Wav2vecURL:      v.GetString("workers.wav2vec_url"),
			DispatchTimeout: v.GetDuration("workers.dispatch_timeout"),
		},
		Callback: CallbackConfig{
			URL:             v.GetString("callback.url"),
			MaxAttempts:     v.GetInt("callback.max_attempts"),
			BaseDelay:       v.GetDuration("callback.base_delay"),
			InitialGrace:    v.GetDuration("callback.initial_grace"),
			MaxPayloadBytes: v.GetInt("callback.max_payload_bytes"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		FallbackLanguage: v.GetString("fallback_language"),
		LogLevel:         v.GetString("log_level"),
	}

	if cfg.Workers.DispatchTimeout <= 0 {
		return nil, fmt.Errorf("workers.dispatch_timeout must be positive")
	}
	if cfg.Callback.MaxAttempts < 1 {
		return nil, fmt.Errorf("callback.max_attempts must be at least 1")
	}

	return cfg, nil
}

// WorkerConfig holds runtime configuration for the asrworker binary.
type WorkerConfig struct {
	Address string
	// ModelName identifies this worker in callbacks ("whisper" or "wav2vec2").
	ModelName string
	// ModelServerURL is the inference service this shell fronts.
	ModelServerURL string
	ModelTimeout   time.Duration
	Callback       CallbackConfig
	LogLevel       string
}

// LoadWorker reads the asrworker configuration from the environment.
func LoadWorker() (*WorkerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ASRWORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("address", ":8001")
	v.SetDefault("model_name", "whisper")
	v.SetDefault("model_server_url", "http://localhost:9001")
	v.SetDefault("model_timeout", "30m")
	v.SetDefault("callback.url", "http://localhost:8080")
	v.SetDefault("callback.max_attempts", 5)
	v.SetDefault("callback.base_delay", "1s")
	v.SetDefault("callback.initial_grace", "500ms")
	v.SetDefault("callback.max_payload_bytes", 512*1024)
	v.SetDefault("log_level", "info")

	cfg := &WorkerConfig{
		Address:        v.GetString("address"),
		ModelName:      v.GetString("model_name"),
		ModelServerURL: v.GetString("model_server_url"),
		ModelTimeout:   v.GetDuration("model_timeout"),
		Callback: CallbackConfig{
			URL:             v.GetString("callback.url"),
			MaxAttempts:     v.GetInt("callback.max_attempts"),
			BaseDelay:       v.GetDuration("callback.base_delay"),
			InitialGrace:    v.GetDuration("callback.initial_grace"),
			MaxPayloadBytes: v.GetInt("callback.max_payload_bytes"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if cfg.ModelName != "whisper" && cfg.ModelName != "wav2vec2" {
		return nil, fmt.Errorf("model_name must be whisper or wav2vec2, got %q", cfg.ModelName)
	}

	return cfg, nil
}
