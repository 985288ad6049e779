package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "PRIVYLOCK_"

// parseEnv loads an optional dotenv file (given by -env-file, or ".env" in
// the working directory when present) and then overlays PRIVYLOCK_*
// variables. Variables already set in the process win over the file.
func parseEnv(config *Config, args []string) {
	envFile := flagx.EnvFileFlags(args)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.SecretKey, "SECRET_KEY")
	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL")
	envString(&config.BlobBackend, "BLOB_BACKEND")
	envString(&config.BlobLocalDir, "BLOB_LOCAL_DIR")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envInt64(&config.MaxUploadSize, "MAX_UPLOAD_SIZE")
	envString(&config.SMTPHost, "SMTP_HOST")
	envInt(&config.SMTPPort, "SMTP_PORT")
	envString(&config.SMTPUser, "SMTP_USER")
	envString(&config.SMTPPassword, "SMTP_PASSWORD")
	envString(&config.SMTPFrom, "SMTP_FROM")
	envString(&config.PushGatewayURL, "PUSH_GATEWAY_URL")
	envString(&config.PushGatewayKey, "PUSH_GATEWAY_KEY")
	envString(&config.GoogleClientID, "GOOGLE_CLIENT_ID")
	envString(&config.GoogleTokenInfoURL, "GOOGLE_TOKENINFO_URL")
	envString(&config.RedisURL, "REDIS_URL")
	envString(&config.FrontendURL, "FRONTEND_URL")
	envDuration(&config.CategoryCacheTTL, "CATEGORY_CACHE_TTL")
	envInt(&config.AuthRateLimit, "AUTH_RATE_LIMIT")
	envDuration(&config.AuthRateWindow, "AUTH_RATE_WINDOW")

	if v, ok := os.LookupEnv(EnvPrefix + "CORS_ORIGINS"); ok {
		config.CORSOrigins = splitList(v)
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func envInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = d
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
