package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Storage struct {
		Backend  string        `koanf:"backend"`
		DataDir  string        `koanf:"data_dir"`
		PoolSize uint64        `koanf:"pool_size"`
		Interval time.Duration `koanf:"checkpoint_interval"`
	} `koanf:"storage"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
	Ignored string
}

func defaults() *testConfig {
	var c testConfig
	c.Storage.Backend = "file"
	c.Storage.DataDir = "/var/lib/vos"
	c.Storage.PoolSize = 1 << 20
	c.Storage.Interval = time.Minute
	c.Log.Level = "info"
	return &c
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/config.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.FilePath() != "/path/to/config.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  data_dir: /data
`)
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("storage.backend"); got != "badger" {
		t.Errorf("storage.backend = %q, want badger", got)
	}
	if got := l.GetString("storage.data_dir"); got != "/data" {
		t.Errorf("storage.data_dir = %q, want /data", got)
	}

	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  data_dir: /from-file
log:
  level: warn
`)
	t.Setenv("VOS_STORAGE_DATA_DIR", "/from-env")
	t.Setenv("VOS_STORAGE_CHECKPOINT_INTERVAL", "5s")

	l := NewLoader(WithConfigFile(path), WithDefaults(defaults()))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env over file", cfg.Storage.DataDir, "/from-env"},
		{"file over default", cfg.Storage.Backend, "badger"},
		{"default kept", cfg.Storage.PoolSize, uint64(1 << 20)},
		{"env duration", cfg.Storage.Interval, 5 * time.Second},
		{"file log level", cfg.Log.Level, "warn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_LoadEnv_UnknownKeysSplit(t *testing.T) {
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if port := l.GetString("server.port"); port != "9090" {
		t.Errorf("server.port = %q, want %q", port, "9090")
	}
}

func TestLoader_LoadStruct(t *testing.T) {
	l := NewLoader()
	if err := l.LoadStruct(defaults()); err != nil {
		t.Fatal(err)
	}
	if got := l.GetString("storage.data_dir"); got != "/var/lib/vos" {
		t.Errorf("storage.data_dir = %q", got)
	}
	if l.Get("ignored") != nil || l.Get("Ignored") != nil {
		t.Error("untagged field loaded")
	}

	if err := l.LoadStruct("not a struct"); err == nil {
		t.Error("LoadStruct accepted a string")
	}
	var nilCfg *testConfig
	if err := l.LoadStruct(nilCfg); err == nil {
		t.Error("LoadStruct accepted a nil pointer")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader(WithDefaults(defaults()))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadMap(map[string]any{"storage.backend": "memory", "port": 8080}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != "memory" || cfg.Storage.DataDir != "/var/lib/vos" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if port := l.GetInt("port"); port != 8080 {
		t.Errorf("GetInt(port) = %d, want %d", port, 8080)
	}
	if len(l.Keys()) < 6 || len(l.All()) < 6 {
		t.Errorf("Keys() = %v", l.Keys())
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	l := NewLoader(WithConfigFile(path), WithDefaults(defaults()))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("storage:\n  backend: badger\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var next testConfig
	if err := l.Reload(&next); err != nil {
		t.Fatal(err)
	}
	if next.Log.Level != "info" || next.Storage.Backend != "badger" {
		t.Errorf("reloaded = %+v", next)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"storage.data_dir":    "STORAGE_DATA_DIR",
		"server.http.addr":    "SERVER_HTTP_ADDR",
		"reclaimer.max-tries": "RECLAIMER_MAX_TRIES",
	}
	for key, want := range tests {
		if got := envName(key); got != want {
			t.Errorf("envName(%q) = %q, want %q", key, got, want)
		}
	}
}
