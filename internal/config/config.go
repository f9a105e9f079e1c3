// Package config reads the optional YAML file shared by the daemon and the
// crontab client. Command line flags override what it sets.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kaiserkarel/mcron/crontab"
	"github.com/kaiserkarel/mcron/daemon"
	"github.com/kaiserkarel/mcron/internal/logx"
)

// Config is the file layout.
type Config struct {
	Paths   Paths         `yaml:"paths"`
	Log     logx.Config   `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
	Shell   string        `yaml:"shell"`
}

// Paths are the files shared between the daemon and the crontab client.
type Paths struct {
	SpoolDir      string `yaml:"spool_dir"`
	SystemCrontab string `yaml:"system_crontab"`
	Socket        string `yaml:"socket"`
	PIDFile       string `yaml:"pid_file"`
	AllowFile     string `yaml:"allow_file"`
	DenyFile      string `yaml:"deny_file"`
	TmpDir        string `yaml:"tmp_dir"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// HistoryConfig enables the run log when Path is set.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Default returns the built-in settings.
func Default() Config {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = crontab.DefaultTmpDir
	}
	return Config{
		Paths: Paths{
			SpoolDir:      daemon.DefaultSpoolDir,
			SystemCrontab: daemon.DefaultSystemCrontab,
			Socket:        daemon.DefaultSocket,
			PIDFile:       daemon.DefaultPIDFile,
			AllowFile:     crontab.DefaultAllowFile,
			DenyFile:      crontab.DefaultDenyFile,
			TmpDir:        tmp,
		},
		Log:     logx.Config{Level: "info", Format: "console"},
		History: HistoryConfig{Retention: 30 * 24 * time.Hour},
		Shell:   "/bin/sh",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// ${VAR} references are expanded before decoding.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the daemon cannot work with.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"paths.spool_dir":      c.Paths.SpoolDir,
		"paths.system_crontab": c.Paths.SystemCrontab,
		"paths.socket":         c.Paths.Socket,
		"paths.pid_file":       c.Paths.PIDFile,
	} {
		if strings.TrimSpace(v) == "" {
			return errors.Errorf("%s must not be empty", name)
		}
	}
	if c.History.Retention < 0 {
		return errors.New("history.retention must not be negative")
	}
	return nil
}
