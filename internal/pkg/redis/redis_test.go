package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "single without addr", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{
			name: "sentinel",
			mutate: func(c *Config) {
				c.Mode = ModeSentinel
				c.SentinelAddrs = []string{"localhost:26379"}
				c.MasterName = "mymaster"
			},
		},
		{
			name: "sentinel without master name",
			mutate: func(c *Config) {
				c.Mode = ModeSentinel
				c.SentinelAddrs = []string{"localhost:26379"}
			},
			wantErr: true,
		},
		{
			name: "cluster with db",
			mutate: func(c *Config) {
				c.Mode = ModeCluster
				c.ClusterAddrs = []string{"localhost:7000"}
				c.DB = 1
			},
			wantErr: true,
		},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "read-write" }, wantErr: true},
		{name: "db out of range", mutate: func(c *Config) { c.DB = 16 }, wantErr: true},
		{name: "zero pool", mutate: func(c *Config) { c.PoolSize = 0 }, wantErr: true},
		{name: "idle exceeds pool", mutate: func(c *Config) { c.MinIdleConns = 100 }, wantErr: true},
		{name: "zero dial timeout", mutate: func(c *Config) { c.DialTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(ErrNil))
	assert.False(t, IsNil(ErrLockNotAcquired))
}
