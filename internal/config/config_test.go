package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"mazeworld/internal/maze"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing server id",
			mutate:  func(cfg *Config) { cfg.Server.ID = "" },
			wantErr: "server.id must be set",
		},
		{
			name:    "missing listen address",
			mutate:  func(cfg *Config) { cfg.Server.Listen = "" },
			wantErr: "server.listen must be set",
		},
		{
			name:    "relative feed path",
			mutate:  func(cfg *Config) { cfg.Server.FeedPath = "feed" },
			wantErr: "server.feedPath must start with /",
		},
		{
			name:    "zero drive rate",
			mutate:  func(cfg *Config) { cfg.Server.DriveRate = 0 },
			wantErr: "server.driveRate must be positive",
		},
		{
			name:    "zero stream rate",
			mutate:  func(cfg *Config) { cfg.Server.StreamRate = 0 },
			wantErr: "server.streamRate must be positive",
		},
		{
			name:    "unknown locate mode",
			mutate:  func(cfg *Config) { cfg.Generation.Locate = "closest" },
			wantErr: `generation.locate must be contain or nearest, got "closest"`,
		},
		{
			name:    "empty observer queue",
			mutate:  func(cfg *Config) { cfg.Observer.QueueSize = 0 },
			wantErr: "observer.queueSize must be positive",
		},
		{
			name: "trace without dir",
			mutate: func(cfg *Config) {
				cfg.Trace.Enabled = true
				cfg.Trace.Dir = ""
			},
			wantErr: "trace.dir must be set when tracing is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("unexpected error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsBadBlockParams(t *testing.T) {
	cfg := Default()
	cfg.Block.WallThickness = 0.75
	err := cfg.Validate()
	if !errors.Is(err, maze.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default configuration mismatch:\nwant: %#v\n got: %#v", want, cfg)
	}
}

func TestLoadReadsJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Server.Listen = ":9999"
	cfg.Block.OpenDeadEnds = true
	cfg.Generation.Seed = 42

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}

func TestLoadReadsPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  driveRate: 50ms
  streamRate: 250000000
block:
  width: 12
  height: 6
  carveRadius: 2
generation:
  seed: 7
  locate: nearest
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.DriveRate.Duration() != 50*time.Millisecond {
		t.Fatalf("drive rate = %v", cfg.Server.DriveRate)
	}
	if cfg.Server.StreamRate.Duration() != 250*time.Millisecond {
		t.Fatalf("stream rate = %v", cfg.Server.StreamRate)
	}
	params := cfg.Block.Params()
	if params.Width != 12 || params.Height != 6 || params.CarveRadius != 2 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.CellSize != Default().Block.CellSize {
		t.Fatalf("unset fields should keep defaults, got cell size %v", params.CellSize)
	}
	if cfg.Generation.Seed != 7 || cfg.Generation.Locate != "nearest" {
		t.Fatalf("unexpected generation %+v", cfg.Generation)
	}
	if cfg.Server.Listen != Default().Server.Listen {
		t.Fatalf("listen should keep its default")
	}
}

func TestParseSchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown top level key", "terrain:\n  seed: 1\n"},
		{"unknown nested key", "block:\n  depth: 3\n"},
		{"wrong type", "block:\n  width: wide\n"},
		{"bad duration", "server:\n  driveRate: soon\n"},
		{"bad locate", "generation:\n  locate: closest\n"},
		{"bad color", "preview:\n  wall: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected schema error")
			}
			if !strings.Contains(err.Error(), "schema config") {
				t.Fatalf("expected a schema failure, got %v", err)
			}
		})
	}
}

func TestParseValidationFailure(t *testing.T) {
	_, err := Parse([]byte("block:\n  width: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "validate config: block:") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.KeepAliveInterval = Duration(1500 * time.Millisecond)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	if !strings.Contains(string(data), "keepAliveInterval: 1.5s") {
		t.Fatalf("expected string duration in yaml:\n%s", data)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse marshalled yaml: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("yaml round trip mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}
