package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"

	"mazeworld/internal/config"
)

// writeConfigFromEnv materialises a configuration handed over through
// MAZE_CONFIG_JSON or MAZE_CONFIG_YAML_B64 at cfgPath.
func writeConfigFromEnv(cfgPath string) (bool, error) {
	jsonPayload := os.Getenv("MAZE_CONFIG_JSON")
	yamlPayload := os.Getenv("MAZE_CONFIG_YAML_B64")

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if cfgPath == "" {
		return false, errors.New("environment provided configuration but no --config path supplied")
	}

	var data []byte
	if jsonPayload != "" {
		data = []byte(jsonPayload)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return false, fmt.Errorf("decode config yaml: %w", err)
		}
		data = decoded
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return false, fmt.Errorf("environment config: %w", err)
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}

// fetchRemoteConfig downloads src (any go-getter source such as an https or
// s3 URL) into a fresh temporary directory and returns the local path.
func fetchRemoteConfig(src string) (string, error) {
	dir, err := os.MkdirTemp("", "mazeserver-config-")
	if err != nil {
		return "", fmt.Errorf("create config staging dir: %w", err)
	}
	dst := filepath.Join(dir, "config.yaml")
	if err := getter.GetFile(dst, src); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("fetch config %s: %w", src, err)
	}
	return dst, nil
}
