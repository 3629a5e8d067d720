package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/auth"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "statestore.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func quietLogger() *logging.Logger {
	var buf bytes.Buffer
	return logging.NewWithWriter(&buf, config.LoggingConfig{Level: "error"}, "test")
}

// TestRun_InvalidConfig verifies run fails when the config file is malformed.
func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "room: [unterminated")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail with invalid config")
	}
}

// TestRun_ValidationFailure verifies run rejects an invalid room ID.
func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "room:\n  id: \"room/+\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, path)
	if err == nil || !strings.Contains(err.Error(), "room.id") {
		t.Fatalf("run() error = %v, want room.id validation error", err)
	}
}

// TestRun_StartupAndShutdown runs with every integration disabled and
// returns cleanly when the context ends.
func TestRun_StartupAndShutdown(t *testing.T) {
	path := writeConfig(t, `
room:
  id: "boardroom-2"
state_store:
  seed:
    "RoomController:room:RoomMode": "SinglePresentation"
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, path); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestRun_MQTTUnreachable verifies run fails when the broker refuses.
// Requires nothing listening on 127.0.0.1:19999.
func TestRun_MQTTUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker connection test in short mode")
	}

	path := writeConfig(t, `
room:
  id: "boardroom-2"
mqtt:
  enabled: true
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-unreachable"
api:
  enabled: false
logging:
  level: error
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail when the MQTT broker is unreachable")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}

	t.Setenv("GRAYLOGIC_CONFIG", "/custom/path/statestore.yaml")
	if path := getConfigPath(); path != "/custom/path/statestore.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", path)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GRAYLOGIC_ROOM_ID", "huddle-1")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Room.ID != "huddle-1" {
		t.Errorf("Room.ID = %q, want huddle-1", cfg.Room.ID)
	}
}

func TestLoadConfig_DefaultsStillValidated(t *testing.T) {
	t.Setenv("GRAYLOGIC_JWT_SECRET", "short")

	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger()); err == nil {
		t.Error("loadConfig() should reject an invalid env override")
	}
}

func TestSeedTable(t *testing.T) {
	table := statestore.New()
	defer table.Close()

	n := seedTable(table, map[string]string{
		"RoomController:room:RoomMode": "SinglePresentation",
		"Display:left:Power":           "False",
		"":                             "ignored",
	})
	if n != 2 {
		t.Errorf("seedTable() = %d, want 2", n)
	}
	if v, _ := table.Get("Display:left:Power"); v != "False" {
		t.Errorf("Get(Display:left:Power) = %q, want False", v)
	}
}

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("GRAYLOGIC_JWT_SECRET", testSecret)
	absent := filepath.Join(t.TempDir(), "absent.yaml")

	out, err := execute(t, "token", "--config", absent,
		"--subject", "panel-1", "--role", "operator", "--rooms", "boardroom-2, huddle-1")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "panel-1" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %s/%s, want panel-1/operator", claims.Subject, claims.Role)
	}
	if len(claims.Rooms) != 2 || claims.Rooms[1] != "huddle-1" {
		t.Errorf("Rooms = %v, want [boardroom-2 huddle-1]", claims.Rooms)
	}
}

func TestTokenCommand_Errors(t *testing.T) {
	absent := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name   string
		secret string
		args   []string
	}{
		{"missing subject", testSecret, []string{"--role", "reader"}},
		{"blank subject", testSecret, []string{"--subject", " "}},
		{"no secret configured", "", []string{"--subject", "x"}},
		{"unknown role", testSecret, []string{"--subject", "x", "--role", "owner"}},
		{"unknown flag", testSecret, []string{"--bogus"}},
		{"positional argument", testSecret, []string{"--subject", "x", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRAYLOGIC_JWT_SECRET", tt.secret)
			args := append([]string{"token", "--config", absent}, tt.args...)
			if _, err := execute(t, args...); err == nil {
				t.Errorf("token %v should fail", tt.args)
			}
		})
	}
}

func TestRootCommand_Version(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("--version output = %q, want it to contain %q", out, version)
	}
}

func TestRootCommand_ConfigFlagDefaultsToEnv(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/custom/path/statestore.yaml")

	flag := newRootCmd().PersistentFlags().Lookup("config")
	if flag == nil || flag.DefValue != "/custom/path/statestore.yaml" {
		t.Errorf("--config default = %v, want env value", flag)
	}
}

func TestCleanRooms(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{"a"}, []string{"a"}},
		{[]string{" a ", "", "b "}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := cleanRooms(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("cleanRooms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
