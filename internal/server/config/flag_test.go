package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	base := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected    func() *Config
		prepare     func(c *Config)
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-m", ":9191", "-driver", "sqlite", "-d", "db", "-s", "secret",
			"-t", "1", "-r", "3", "-l", "debug", "-reuse",
		},
			expected: func() *Config {
				c := base()
				c.EndpointAddrGRPC = "127.0.0.1:9090"
				c.MetricsAddr = ":9191"
				c.DatabaseDriver = DriverSQLite
				c.DatabaseDSN = "db"
				c.SecretKey = "secret"
				c.AccessTokenValidityDuration = 1 * time.Minute
				c.RefreshTokenValidityDuration = 3 * time.Minute
				c.LogLevel = "debug"
				c.RevokeOnReuse = true
				return c
			}},
		{name: "ttl flags absent keep sub-minute values", args: []string{"cmd", "-s", "x"},
			prepare: func(c *Config) { c.AccessTokenValidityDuration = 30 * time.Second },
			expected: func() *Config {
				c := base()
				c.SecretKey = "x"
				c.AccessTokenValidityDuration = 30 * time.Second
				return c
			}},
		{name: "bad ttl", args: []string{"cmd", "-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := base()
			if tt.prepare != nil {
				tt.prepare(config)
			}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}

			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected(), config))
		})
	}
}
