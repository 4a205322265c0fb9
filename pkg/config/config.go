// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

// Package config loads the controller's YAML configuration: listener
// addresses, serial ports, and the device inventory.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Serial  SerialConfig  `yaml:"serial"`
	Devices DevicesConfig `yaml:"devices"`
	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig contains the network listener addresses. An empty WS
// address disables the WebSocket front-end.
type ListenConfig struct {
	TCP string `yaml:"tcp"`
	WS  string `yaml:"ws"`
}

// SerialConfig contains the two serial attachments: the operator
// console and the shared instrument bus.
type SerialConfig struct {
	Console ConsoleConfig `yaml:"console"`
	Bus     BusConfig     `yaml:"bus"`
}

// ConsoleConfig describes the operator console port. An empty port name
// disables the serial front-end.
type ConsoleConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// BusConfig describes the shared half-duplex bus port. Electrical
// parameters are not configured here: they belong to each transaction.
type BusConfig struct {
	Port string `yaml:"port"`
}

// DevicesConfig is the device inventory registered at startup.
type DevicesConfig struct {
	Relays []RelayConfig `yaml:"relays"`
	Valves []ValveConfig `yaml:"valves"`
	Pumps  []PumpConfig  `yaml:"pumps"`
}

// RelayConfig describes one relay channel. Output and Indicator
// override the default line names derived from Index when set.
type RelayConfig struct {
	ID        string `yaml:"id"`
	Index     int    `yaml:"index"`
	Output    string `yaml:"output"`
	Indicator string `yaml:"indicator"`
}

// ValveConfig describes one selector valve on the shared bus.
type ValveConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// PumpConfig describes one pump on the shared bus.
type PumpConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: TCP on :9100, a 115200
// baud console, no devices.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{TCP: ":9100"},
		Serial:  SerialConfig{Console: ConsoleConfig{Baud: 115200}},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a configuration file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Listen.TCP == "" {
		return fmt.Errorf("listen.tcp must be set")
	}
	if c.Serial.Console.Port != "" && c.Serial.Console.Baud <= 0 {
		return fmt.Errorf("serial.console.baud must be positive")
	}

	busUsers := len(c.Devices.Valves) + len(c.Devices.Pumps)
	if busUsers > 0 && c.Serial.Bus.Port == "" {
		return fmt.Errorf("serial.bus.port must be set when valves or pumps are configured")
	}

	seen := map[string]bool{}
	checkID := func(id string) error {
		if id == "" {
			return fmt.Errorf("device id must not be empty")
		}
		key := strings.ToUpper(id)
		if seen[key] {
			return fmt.Errorf("duplicate device id %s", id)
		}
		seen[key] = true
		return nil
	}

	for _, r := range c.Devices.Relays {
		if err := checkID(r.ID); err != nil {
			return err
		}
		if (r.Output == "") != (r.Indicator == "") {
			return fmt.Errorf("relay %s: output and indicator overrides must be set together", r.ID)
		}
		if r.Output == "" && (r.Index < 1 || r.Index > 4) {
			return fmt.Errorf("relay %s: index %d out of range 1..4", r.ID, r.Index)
		}
	}
	for _, v := range c.Devices.Valves {
		if err := checkID(v.ID); err != nil {
			return err
		}
		if len(v.Address) != 1 {
			return fmt.Errorf("valve %s: address must be a single character", v.ID)
		}
	}
	for _, p := range c.Devices.Pumps {
		if err := checkID(p.ID); err != nil {
			return err
		}
		if p.Address == "" {
			return fmt.Errorf("pump %s: address must be set", p.ID)
		}
		for _, r := range p.Address {
			if r < '0' || r > '9' {
				return fmt.Errorf("pump %s: address must be numeric", p.ID)
			}
		}
	}
	return nil
}
