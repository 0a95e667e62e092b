package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/todo/internal/store"
)

const (
	DefaultConfigFile = ".todo.yaml"
	EnvFile           = "TODO_FILE"
	EnvConfig         = "TODO_CONFIG"
)

// File is the on-disk YAML configuration.
type File struct {
	File          string `yaml:"file"`
	LogLevel      string `yaml:"log_level"`
	ShowCompleted bool   `yaml:"show_completed"`
	ExportDir     string `yaml:"export_dir"`
}

type Config struct {
	TasksFile     string
	ConfigPath    string
	ConfigFound   bool
	LogLevel      string
	ShowCompleted bool
	ExportDir     string
}

// Overrides come from command-line flags and win over everything else.
type Overrides struct {
	TasksFile  string
	ConfigPath string
}

// Resolve builds the effective configuration. The tasks file is taken from
// the flag, then TODO_FILE, then the config file, then store.DefaultPath.
// A relative file in the config file is relative to the config file itself.
func Resolve(o Overrides, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{LogLevel: "info"}

	cfgPath := strings.TrimSpace(o.ConfigPath)
	explicit := cfgPath != ""
	if !explicit {
		if env := strings.TrimSpace(getenv(EnvConfig)); env != "" {
			cfgPath = env
			explicit = true
		} else {
			cfgPath = DefaultConfigFile
		}
	}
	cfg.ConfigPath = expandHome(cfgPath)

	f, err := readFile(cfg.ConfigPath)
	switch {
	case err == nil:
		cfg.ConfigFound = true
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("config %s: %w", cfg.ConfigPath, err)
	}

	if lvl := strings.TrimSpace(f.LogLevel); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}
	cfg.ShowCompleted = f.ShowCompleted

	switch {
	case strings.TrimSpace(o.TasksFile) != "":
		cfg.TasksFile = expandHome(strings.TrimSpace(o.TasksFile))
	case strings.TrimSpace(getenv(EnvFile)) != "":
		cfg.TasksFile = expandHome(strings.TrimSpace(getenv(EnvFile)))
	case strings.TrimSpace(f.File) != "":
		cfg.TasksFile = relativeTo(cfg.ConfigPath, expandHome(strings.TrimSpace(f.File)))
	default:
		cfg.TasksFile = store.DefaultPath
	}

	if dir := strings.TrimSpace(f.ExportDir); dir != "" {
		cfg.ExportDir = relativeTo(cfg.ConfigPath, expandHome(dir))
	} else {
		cfg.ExportDir = filepath.Join(filepath.Dir(cfg.TasksFile), "exports")
	}
	return cfg, nil
}

func readFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, err
	}
	return f, nil
}

func relativeTo(cfgPath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(cfgPath), p)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
