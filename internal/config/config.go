package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mazeworld/internal/maze"
)

//go:embed schema.json
var schemaSource string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config.schema.json", schemaSource)
})

// Duration wraps time.Duration so configuration files can use strings such
// as "100ms". Integers are read as nanoseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration: invalid value %s", string(b))
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: line %d: expected a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: line %d: %w", node.Line, err)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds everything needed to run a maze world process.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Block      BlockConfig      `json:"block" yaml:"block"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Observer   ObserverConfig   `json:"observer" yaml:"observer"`
	Trace      TraceConfig      `json:"trace" yaml:"trace"`
	Preview    PreviewConfig    `json:"preview" yaml:"preview"`
}

type ServerConfig struct {
	ID                string   `json:"id" yaml:"id"`
	Listen            string   `json:"listen" yaml:"listen"`                       // ":8080"
	FeedPath          string   `json:"feedPath" yaml:"feedPath"`                   // websocket path
	DriveRate         Duration `json:"driveRate" yaml:"driveRate"`                 // manager drive cadence
	StreamRate        Duration `json:"streamRate" yaml:"streamRate"`               // wall delta flush cadence
	KeepAliveInterval Duration `json:"keepAliveInterval" yaml:"keepAliveInterval"` // idle ping to clients
	WriteTimeout      Duration `json:"writeTimeout" yaml:"writeTimeout"`
	SendBuffer        int      `json:"sendBuffer" yaml:"sendBuffer"` // queued messages per client
}

type BlockConfig struct {
	Width         int     `json:"width" yaml:"width"`
	Height        int     `json:"height" yaml:"height"`
	CellSize      float64 `json:"cellSize" yaml:"cellSize"`
	CarveRadius   int     `json:"carveRadius" yaml:"carveRadius"`
	WallThickness float64 `json:"wallThickness" yaml:"wallThickness"`
	OpenDeadEnds  bool    `json:"openDeadEnds" yaml:"openDeadEnds"`
}

// Params converts the block section to carving parameters.
func (b BlockConfig) Params() maze.Params {
	return maze.Params{
		Width:         b.Width,
		Height:        b.Height,
		CellSize:      b.CellSize,
		CarveRadius:   b.CarveRadius,
		WallThickness: b.WallThickness,
		OpenDeadEnds:  b.OpenDeadEnds,
	}
}

type GenerationConfig struct {
	Seed   int64  `json:"seed" yaml:"seed"`     // 0 carves at random
	Locate string `json:"locate" yaml:"locate"` // contain | nearest
}

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type ObserverConfig struct {
	Start     Point `json:"start" yaml:"start"`
	QueueSize int   `json:"queueSize" yaml:"queueSize"`
}

type TraceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
}

type PreviewConfig struct {
	Dir           string  `json:"dir" yaml:"dir"`
	PixelsPerUnit float64 `json:"pixelsPerUnit" yaml:"pixelsPerUnit"`
	Background    string  `json:"background" yaml:"background"`
	Floor         string  `json:"floor" yaml:"floor"`
	Wall          string  `json:"wall" yaml:"wall"`
	Marker        string  `json:"marker" yaml:"marker"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:                "maze-server-0",
			Listen:            ":8080",
			FeedPath:          "/v1/feed",
			DriveRate:         Duration(100 * time.Millisecond),
			StreamRate:        Duration(200 * time.Millisecond),
			KeepAliveInterval: Duration(5 * time.Second),
			WriteTimeout:      Duration(5 * time.Second),
			SendBuffer:        256,
		},
		Block: BlockConfig{
			Width:         8,
			Height:        8,
			CellSize:      1,
			CarveRadius:   0,
			WallThickness: 0.1,
			OpenDeadEnds:  false,
		},
		Generation: GenerationConfig{
			Seed:   0,
			Locate: "contain",
		},
		Observer: ObserverConfig{
			Start:     Point{X: 0.5, Y: 0.5},
			QueueSize: 64,
		},
		Trace: TraceConfig{
			Enabled: false,
			Dir:     "traces",
		},
		Preview: PreviewConfig{
			Dir:           "maze-preview",
			PixelsPerUnit: 8,
		},
	}
}

// Load reads a YAML or JSON configuration file. An empty path returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse checks data against the embedded schema, overlays it on the defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := checkSchema(data); err != nil {
		return nil, fmt.Errorf("schema config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func checkSchema(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("convert config: %w", err)
	}
	return schema.Validate(normalized)
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	if !strings.HasPrefix(c.Server.FeedPath, "/") {
		return errors.New("server.feedPath must start with /")
	}
	if c.Server.DriveRate <= 0 {
		return errors.New("server.driveRate must be positive")
	}
	if c.Server.StreamRate <= 0 {
		return errors.New("server.streamRate must be positive")
	}
	if c.Server.KeepAliveInterval < 0 {
		return errors.New("server.keepAliveInterval cannot be negative")
	}
	if c.Server.SendBuffer <= 0 {
		return errors.New("server.sendBuffer must be positive")
	}
	if err := c.Block.Params().Validate(); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	switch c.Generation.Locate {
	case "contain", "nearest":
	default:
		return fmt.Errorf("generation.locate must be contain or nearest, got %q", c.Generation.Locate)
	}
	if c.Observer.QueueSize <= 0 {
		return errors.New("observer.queueSize must be positive")
	}
	if c.Trace.Enabled && c.Trace.Dir == "" {
		return errors.New("trace.dir must be set when tracing is enabled")
	}
	if c.Preview.PixelsPerUnit <= 0 {
		return errors.New("preview.pixelsPerUnit must be positive")
	}
	return nil
}
