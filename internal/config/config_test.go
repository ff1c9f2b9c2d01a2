package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Realtime.Host != "push.truedata.in" || cfg.Realtime.Port != 8082 {
		t.Errorf("realtime defaults = %s:%d", cfg.Realtime.Host, cfg.Realtime.Port)
	}
	if cfg.Realtime.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat interval = %s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Realtime.FirstSubscriptionID != 2000 {
		t.Errorf("first subscription id = %d", cfg.Realtime.FirstSubscriptionID)
	}
	if cfg.History.DefaultBarSize != "1min" {
		t.Errorf("default bar size = %s", cfg.History.DefaultBarSize)
	}
}

func TestLoadFrom_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
credentials:
  login_id: user1
  password: pass1
realtime:
  port: 8086
  confirm_count: 6
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Credentials.LoginID != "user1" {
		t.Errorf("login id = %q", cfg.Credentials.LoginID)
	}
	if cfg.Realtime.Port != 8086 || cfg.Realtime.ConfirmCount != 6 {
		t.Errorf("overrides not applied: port=%d confirm=%d", cfg.Realtime.Port, cfg.Realtime.ConfirmCount)
	}
	// Untouched keys keep their defaults.
	if cfg.Realtime.Host != "push.truedata.in" {
		t.Errorf("host = %q", cfg.Realtime.Host)
	}
}

func TestLoadFrom_EnvCredentials(t *testing.T) {
	t.Setenv("TD_LOGIN_ID", "envuser")
	t.Setenv("TD_PASSWORD", "envpass")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Credentials.LoginID != "envuser" || cfg.Credentials.Password != "envpass" {
		t.Errorf("env credentials not applied: %+v", cfg.Credentials)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := LoadFrom(t.TempDir())
	if err := cfg.Validate(); err == nil {
		t.Error("validate passed without credentials")
	}

	cfg.Credentials.LoginID = "user1"
	cfg.Credentials.Password = "pass1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate failed: %v", err)
	}

	cfg.Realtime.ConfirmCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("validate passed with zero confirm count")
	}
}

func TestWebSocketURL(t *testing.T) {
	cfg, _ := LoadFrom(t.TempDir())
	cfg.Credentials.LoginID = "user1"
	cfg.Credentials.Password = "pass1"

	want := "wss://push.truedata.in:8082?user=user1&password=pass1"
	if got := cfg.WebSocketURL(); got != want {
		t.Errorf("url = %q, want %q", got, want)
	}

	cfg.Credentials.BrokerToken = "bt1"
	if got := cfg.WebSocketURL(); got != want+"&brokertoken=bt1" {
		t.Errorf("url with broker token = %q", got)
	}
}
