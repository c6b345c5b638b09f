// Package config defines the CLI surface parsed by kong.
package config

import "github.com/Alia5/udcore/internal/cmd"

// LogConfig holds the shared logging flags.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"UDCORE_LOG_LEVEL"`
	File    string `help:"Write logs to this file instead of the console" env:"UDCORE_LOG_FILE"`
	RawFile string `help:"Write raw bus traffic hex dumps to this file" env:"UDCORE_RAW_LOG_FILE"`
}

// CLI is the root command grammar.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to a configuration file" env:"UDCORE_CONFIG"`

	Run       cmd.Run           `cmd:"" help:"Host a vendor-echo device on the in-process virtual bus"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
}
