package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr    = "localhost:8080"
		dsn     = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key     = "c29tZV9zZWNyZXQ="
		orig    = []string{"http://localhost:3000"}
		reap    = 5 * time.Minute
		idle    = 10 * time.Minute
		badReap = time.Duration(0)
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		reap time.Duration
		idle time.Duration
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			reap: reap,
			idle: idle,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			reap: reap,
			idle: idle,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			reap: reap,
			idle: idle,
			err:  true,
		},
		{
			name: "empty signing key",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			reap: reap,
			idle: idle,
			err:  true,
		},
		{
			name: "invalid base64 signing key",
			addr: addr,
			dsn:  dsn,
			key:  "not_base64!",
			orig: orig,
			reap: reap,
			idle: idle,
			err:  true,
		},
		{
			name: "non-positive reap interval",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			reap: badReap,
			idle: idle,
			err:  true,
		},
		{
			name: "non-positive idle timeout",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			reap: reap,
			idle: -time.Second,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig, tc.reap, tc.idle)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, tc.reap, config.ReapInterval, "expected reap interval to match")
			assert.Equal(t, tc.idle, config.IdleTimeout, "expected idle timeout to match")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
		})
	}
}

func Test_decodeSigningSecret(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match")
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		d, err := FromEnv()
		assert.NoError(t, err)
		assert.Equal(t, "localhost:8000", d.ServerAddr)
		assert.Equal(t, 5*time.Minute, d.ReapInterval)
		assert.Equal(t, 10*time.Minute, d.IdleTimeout)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("WATCHROOM_ADDR", "0.0.0.0:9000")
		t.Setenv("WATCHROOM_IDLE_TIMEOUT", "30m")
		t.Setenv("WATCHROOM_ALLOWED_ORIGINS", "http://a.example,http://b.example")

		d, err := FromEnv()
		assert.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", d.ServerAddr)
		assert.Equal(t, 30*time.Minute, d.IdleTimeout)
		assert.Equal(t, []string{"http://a.example", "http://b.example"}, d.AllowedOrigins)
	})
}
