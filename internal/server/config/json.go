package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "15m" and integer nanoseconds.
//
// Keys absent from the file leave the corresponding Config field unchanged.
type JsonConfig struct {
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	MetricsAddr                  string          `json:"metrics_addr"`
	DatabaseDriver               string          `json:"db_driver"`
	DatabaseDSN                  string          `json:"database_dsn"`
	DBMaxOpenConns               int             `json:"db_max_open_conns"`
	DBMaxIdleConns               int             `json:"db_max_idle_conns"`
	DBConnMaxLifetime            timex.Duration  `json:"db_conn_max_lifetime"`
	SecretKey                    string          `json:"secret_key"`
	Issuer                       string          `json:"issuer"`
	AccessTokenValidityDuration  timex.Duration  `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration  `json:"refresh_token_validity_duration"`
	RevokeOnReuse                *bool           `json:"revoke_on_reuse"`
	PasswordHashAlgorithm        string          `json:"password_hash_algorithm"`
	PasswordHashCost             int             `json:"password_hash_cost"`
	CleanupInterval              timex.Duration  `json:"cleanup_interval"`
	CleanupGrace                 *timex.Duration `json:"cleanup_grace"`
	CleanupBatchSize             int             `json:"cleanup_batch_size"`
	LogLevel                     string          `json:"log_level"`
	LogFormat                    string          `json:"log_format"`
	OTLPEndpoint                 string          `json:"otlp_endpoint"`
	RequestTimeout               timex.Duration  `json:"request_timeout"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set nothing is loaded.
//
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigFile(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setInt(&config.DBMaxOpenConns, c.DBMaxOpenConns)
	setInt(&config.DBMaxIdleConns, c.DBMaxIdleConns)
	if c.DBConnMaxLifetime.Duration != 0 {
		config.DBConnMaxLifetime = c.DBConnMaxLifetime.Duration
	}
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RevokeOnReuse != nil {
		config.RevokeOnReuse = *c.RevokeOnReuse
	}
	setString(&config.PasswordHashAlgorithm, c.PasswordHashAlgorithm)
	setInt(&config.PasswordHashCost, c.PasswordHashCost)
	if c.CleanupInterval.Duration != 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	if c.CleanupGrace != nil {
		config.CleanupGrace = c.CleanupGrace.Duration
	}
	setInt(&config.CleanupBatchSize, c.CleanupBatchSize)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
