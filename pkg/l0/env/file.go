package env

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Port            string `toml:"port"`
	Baud            int    `toml:"baud"`
	Timeout         string `toml:"timeout"`
	TimeoutMS       int64  `toml:"timeout_ms"`
	FrameDeadline   string `toml:"frame_deadline"`
	FrameDeadlineMS int64  `toml:"frame_deadline_ms"`
	Trace           bool   `toml:"trace"`
	Sim             bool   `toml:"sim"`
}

// LoadFile overrides the config with keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("port") {
		c.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		c.BaudRate = raw.Baud
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		c.Timeout = d
	}
	if meta.IsDefined("timeout_ms") {
		c.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("frame_deadline") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FrameDeadline))
		if err != nil {
			return fmt.Errorf("parse frame_deadline: %w", err)
		}
		c.FrameDeadline = d
	}
	if meta.IsDefined("frame_deadline_ms") {
		c.FrameDeadline = time.Duration(raw.FrameDeadlineMS) * time.Millisecond
	}
	if meta.IsDefined("trace") {
		c.Trace = raw.Trace
	}
	if meta.IsDefined("sim") {
		c.Sim = raw.Sim
	}
	return nil
}
