package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/privylock/internal/flagx"
	"github.com/dmitrijs2005/privylock/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// "15m"-style strings or integer nanoseconds. Absent fields keep whatever
// the earlier layers set.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	LogLevel                     string         `json:"log_level"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	BlobBackend                  string         `json:"blob_backend"`
	BlobLocalDir                 string         `json:"blob_local_dir"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	MaxUploadSize                int64          `json:"max_upload_size"`
	SMTPHost                     string         `json:"smtp_host"`
	SMTPPort                     int            `json:"smtp_port"`
	SMTPUser                     string         `json:"smtp_user"`
	SMTPPassword                 string         `json:"smtp_password"`
	SMTPFrom                     string         `json:"smtp_from"`
	PushGatewayURL               string         `json:"push_gateway_url"`
	PushGatewayKey               string         `json:"push_gateway_key"`
	GoogleClientID               string         `json:"google_client_id"`
	GoogleTokenInfoURL           string         `json:"google_tokeninfo_url"`
	RedisURL                     string         `json:"redis_url"`
	FrontendURL                  string         `json:"frontend_url"`
	CategoryCacheTTL             timex.Duration `json:"category_cache_ttl"`
	AuthRateLimit                int            `json:"auth_rate_limit"`
	AuthRateWindow               timex.Duration `json:"auth_rate_window"`
	CORSOrigins                  []string       `json:"cors_origins"`
}

// parseJson overlays values from the JSON file named by -c/-config.
// Nothing happens when the flag is absent; an unreadable or invalid file
// panics, since the server cannot start with a config it did not ask for.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlags(args)
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BlobLocalDir, c.BlobLocalDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort > 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	setString(&config.PushGatewayURL, c.PushGatewayURL)
	setString(&config.PushGatewayKey, c.PushGatewayKey)
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleTokenInfoURL, c.GoogleTokenInfoURL)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.FrontendURL, c.FrontendURL)
	if c.CategoryCacheTTL.Duration > 0 {
		config.CategoryCacheTTL = c.CategoryCacheTTL.Duration
	}
	if c.AuthRateLimit > 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	if c.AuthRateWindow.Duration > 0 {
		config.AuthRateWindow = c.AuthRateWindow.Duration
	}
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
