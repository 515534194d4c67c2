package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
	"zombiezen.com/go/log"
)

// configFileName is looked up in the user's home directory. The file
// is JWCC ("JSON with commas and comments"), so defaults can carry
// explanatory comments.
const configFileName = ".lua51rc.hujson"

type config struct {
	// OpenLibraries restricts which standard libraries open at
	// startup ("base", "string", "math", "table", "os", "io").
	// Empty means all of them.
	OpenLibraries []string `json:"openLibraries"`
	// ModulePath lists the directories -l searches for mod.lua.
	ModulePath []string `json:"modulePath"`
}

func defaultConfig() *config {
	return &config{
		ModulePath: []string{"."},
	}
}

func loadConfig(ctx context.Context) (*config, error) {
	cfg := defaultConfig()
	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}
	path := filepath.Join(home, configFileName)
	if err := cfg.mergeFile(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	log.Debugf(ctx, "merged config from %s", path)
	return cfg, nil
}

func (c *config) mergeFile(path string) error {
	huJSONData, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	jsonData, err := hujson.Standardize(huJSONData)
	if err != nil {
		return fmt.Errorf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("read %s: %v", path, err)
	}
	if len(c.ModulePath) == 0 {
		c.ModulePath = []string{"."}
	}
	return nil
}
