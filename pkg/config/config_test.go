// Copyright 2025 Takhin Data, Inc.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		configFile string
		wantErr    bool
		validate   func(*testing.T, *Config)
	}{
		{
			name:       "load with defaults",
			configFile: "",
			wantErr:    false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 5701, cfg.Server.Port)
				assert.Equal(t, 271, cfg.Partition.Count)
				assert.Equal(t, 7, cfg.Partition.MaxReplicaCount)
				assert.Equal(t, "info", cfg.Logging.Level)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.configFile)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &Config{
				Server: ServerConfig{
					Port: 5701,
				},
				Partition: PartitionConfig{
					Count:           271,
					MaxReplicaCount: 7,
				},
				Logging: LoggingConfig{
					Level: "info",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid port",
			cfg: &Config{
				Server: ServerConfig{
					Port: -1,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid partition count",
			cfg: &Config{
				Server:    ServerConfig{Port: 5701},
				Partition: PartitionConfig{Count: 0},
				Logging:   LoggingConfig{Level: "info"},
			},
			wantErr: true,
		},
		{
			name: "invalid max replica count",
			cfg: &Config{
				Server:    ServerConfig{Port: 5701},
				Partition: PartitionConfig{Count: 271, MaxReplicaCount: 8},
				Logging:   LoggingConfig{Level: "info"},
			},
			wantErr: true,
		},
		{
			name: "self address not in seed list",
			cfg: &Config{
				Server:    ServerConfig{Port: 5701},
				Partition: PartitionConfig{Count: 271, MaxReplicaCount: 7},
				Membership: MembershipConfig{
					SelfAddress: "10.0.0.5:5701",
					SeedMembers: []string{"10.0.0.1:5701", "10.0.0.2:5701"},
				},
				Logging: LoggingConfig{Level: "info"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
