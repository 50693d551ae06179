// Package config holds the root command line of necoboard.
package config

import "github.com/necocen/necoboard/internal/cmd"

type Log struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"NECOBOARD_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"NECOBOARD_LOG_FILE"`
	Format  string `help:"Log record format" enum:"text,json" default:"text" env:"NECOBOARD_LOG_FORMAT"`
	RawFile string `help:"Hex-dump every outgoing report to this file" env:"NECOBOARD_LOG_RAW_FILE"`
}

// CLI is the root command. Flags may also come from the JSON, YAML or TOML
// files found by configpaths; flags and env override file values.
type CLI struct {
	Config string `help:"Configuration file (json, yaml or toml)" env:"NECOBOARD_CONFIG"`
	Log    Log    `embed:"" prefix:"log."`

	Run       cmd.Run           `cmd:"" help:"Simulate the keyboard from a frame script or the interactive console"`
	Layout    cmd.LayoutCommand `cmd:"" help:"Inspect layout documents"`
	Trace     cmd.TraceCommand  `cmd:"" help:"Inspect key-event traces"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Manage configuration files"`
}
