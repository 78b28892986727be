package properties

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

type Config struct {
	RootPath string
	AOIPath  string
	AOIs     []string

	Planet   PlanetConfig
	Pipeline PipelineConfig

	MinioCfg    MinioConfig
	PostgresCfg PostgresConfig
	RedisCfg    RedisConfig
	RabbitMQURL string
	APIPort     string
}

type PlanetConfig struct {
	BaseURL      string
	APIKey       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	ItemType     string
	AssetType    string
	Retries      int
	// WindowDays is the search window length ending now.
	WindowDays int
	MaxCloud   float64
}

type PipelineConfig struct {
	QualityThreshold float64
	QualityStage     string
	DeleteRejected   bool
	PollInterval     time.Duration
	PollTimeout      time.Duration
	MaxWorkers       int
	MergePolicy      string
}

type MinioConfig struct {
	MinioURL       string
	MinioAccessKey string
	MinioSecretKey string
	MinioLocation  string
	MinioSecure    string
	Bucket         string
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// New reads the configuration from the environment. Call godotenv.Load first
// when a .env file is used.
func New() *Config {
	return &Config{
		RootPath: getEnvOrDefault("ROOT_PATH", "."),
		AOIPath:  getEnvOrDefault("AOI_PATH", "polygons"),
		AOIs:     splitList(os.Getenv("PL_AOIS")),
		Planet: PlanetConfig{
			BaseURL:      getEnvOrDefault("PL_BASE_URL", "https://api.planet.com"),
			APIKey:       getEnvOrDefault("PL_API_KEY", ""),
			TokenURL:     getEnvOrDefault("PL_TOKEN_URL", ""),
			ClientID:     getEnvOrDefault("PL_CLIENT_ID", ""),
			ClientSecret: getEnvOrDefault("PL_CLIENT_SECRET", ""),
			ItemType:     getEnvOrDefault("PL_ITEM_TYPE", "PSScene4Band"),
			AssetType:    getEnvOrDefault("PL_ASSET_TYPE", "analytic"),
			Retries:      getIntOrDefault("PL_RETRIES", 5),
			WindowDays:   getIntOrDefault("PL_WINDOW_DAYS", 182),
			MaxCloud:     getFloatOrDefault("PL_MAX_CLOUD", 0.25),
		},
		Pipeline: PipelineConfig{
			QualityThreshold: getFloatOrDefault("QUALITY_THRESHOLD", 0.25),
			QualityStage:     getEnvOrDefault("QUALITY_STAGE", "before"),
			DeleteRejected:   getBoolOrDefault("DELETE_REJECTED", false),
			PollInterval:     getDurationOrDefault("POLL_INTERVAL", time.Second),
			PollTimeout:      getDurationOrDefault("POLL_TIMEOUT", 5*time.Minute),
			MaxWorkers:       getIntOrDefault("MAX_WORKERS", 1),
			MergePolicy:      getEnvOrDefault("MERGE_POLICY", "exact"),
		},
		MinioCfg: MinioConfig{
			MinioURL:       getEnvOrDefault("MINIO_ENDPOINT", ""),
			MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", ""),
			MinioLocation:  getEnvOrDefault("MINIO_LOCATION", "us-east-1"),
			MinioSecure:    getEnvOrDefault("MINIO_SECURE", "true"),
			Bucket:         getEnvOrDefault("MINIO_BUCKET", "usgs-mmh-ndvi"),
		},
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", ""),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", ""),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		RabbitMQURL: getEnvOrDefault("RABBITMQ_URL", ""),
		APIPort:     getEnvOrDefault("API_PORT", "8080"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
