package config

import (
	"encoding/json"
	"os"

	"github.com/aformulationoftruth/server/internal/flagx"
	"github.com/aformulationoftruth/server/internal/timex"
)

// JsonConfig is the DTO for reading JSON configuration files. Duration
// fields accept "15m" style strings or integer nanoseconds; after
// unmarshalling the values are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	DatabaseDSN             string         `json:"database_dsn"`
	SessionSecret           string         `json:"session_secret"`
	MasterSecret            string         `json:"master_secret"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	LinkValidityDuration    timex.Duration `json:"link_validity_duration"`
	BaseURL                 string         `json:"base_url"`
	PostAuthPath            string         `json:"post_auth_path"`
	LoginPath               string         `json:"login_path"`
	CookieName              string         `json:"cookie_name"`
	CookieSecure            bool           `json:"cookie_secure"`
	RedisAddr               string         `json:"redis_addr"`
	SweepInterval           timex.Duration `json:"sweep_interval"`
	S3RootUser              string         `json:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flags into the provided Config. Absent flags mean no overlay;
// an unreadable or invalid file panics, matching flag parsing behavior.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

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

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SessionSecret != "" {
		config.SessionSecret = c.SessionSecret
	}
	if c.MasterSecret != "" {
		config.MasterSecret = c.MasterSecret
	}
	if c.SessionValidityDuration.Duration != 0 {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.LinkValidityDuration.Duration != 0 {
		config.LinkValidityDuration = c.LinkValidityDuration.Duration
	}
	if c.BaseURL != "" {
		config.BaseURL = c.BaseURL
	}
	if c.PostAuthPath != "" {
		config.PostAuthPath = c.PostAuthPath
	}
	if c.LoginPath != "" {
		config.LoginPath = c.LoginPath
	}
	if c.CookieName != "" {
		config.CookieName = c.CookieName
	}
	config.CookieSecure = config.CookieSecure || c.CookieSecure
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
