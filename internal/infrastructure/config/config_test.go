package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
room:
  id: "boardroom-2"
  name: "Boardroom 2"
state_store:
  observer_buffer: 64
  seed:
    "RoomController:room:RoomMode": "SinglePresentation"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Room.ID != "boardroom-2" {
		t.Errorf("Room.ID = %q, want %q", cfg.Room.ID, "boardroom-2")
	}
	if cfg.StateStore.ObserverBuffer != 64 {
		t.Errorf("StateStore.ObserverBuffer = %d, want 64", cfg.StateStore.ObserverBuffer)
	}
	if got := cfg.StateStore.Seed["RoomController:room:RoomMode"]; got != "SinglePresentation" {
		t.Errorf("StateStore.Seed[RoomMode] = %q, want %q", got, "SinglePresentation")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT = %+v, want enabled on localhost", cfg.MQTT)
	}
	// Defaults survive for sections the file doesn't mention.
	if cfg.WebSocket.PingInterval != 30 {
		t.Errorf("WebSocket.PingInterval = %d, want default 30", cfg.WebSocket.PingInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
room:
  id: ""
api:
  port: 8090
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for empty room.id, got nil")
	}
	if !strings.Contains(err.Error(), "room.id") {
		t.Errorf("Load() error = %v, want mention of room.id", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "empty JWT secret disables auth", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: false},
		{name: "missing room ID", mutate: func(c *Config) { c.Room.ID = "" }, wantErr: true},
		{name: "room ID with wildcard", mutate: func(c *Config) { c.Room.ID = "room/+" }, wantErr: true},
		{name: "zero observer buffer", mutate: func(c *Config) { c.StateStore.ObserverBuffer = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name:    "mqtt enabled without host",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{
			name:    "port ignored when API disabled",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: false,
		},
		{name: "zero websocket ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = 0 }, wantErr: true},
		{name: "influxdb enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	timeouts := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}
	ws := WebSocketConfig{PingInterval: 20, PongTimeout: 5}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ReadDuration", timeouts.ReadDuration(), 30 * time.Second},
		{"WriteDuration", timeouts.WriteDuration(), 45 * time.Second},
		{"IdleDuration", timeouts.IdleDuration(), time.Minute},
		{"PingDuration", ws.PingDuration(), 20 * time.Second},
		{"PongDuration", ws.PongDuration(), 5 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_ROOM_ID", "huddle-1")
	t.Setenv("GRAYLOGIC_ROOM_AUTH_TOKEN", "room-token")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_LOG_LEVEL", "debug")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Room.ID", cfg.Room.ID, "huddle-1"},
		{"Room.AuthToken", cfg.Room.AuthToken, "room-token"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GRAYLOGIC_ROOM_ID", "from-env")

	cfg := Default()
	if cfg.Room.ID != "from-env" {
		t.Errorf("Default().Room.ID = %q, want %q", cfg.Room.ID, "from-env")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Room.ID == "" {
		t.Error("defaultConfig should have non-empty Room.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.StateStore.ObserverBuffer < 1 {
		t.Errorf("defaultConfig StateStore.ObserverBuffer = %d, want >= 1", cfg.StateStore.ObserverBuffer)
	}
}
