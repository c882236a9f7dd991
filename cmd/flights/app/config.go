package app

import (
	"errors"
	"flag"
)

type Config struct {
	DBPath    string
	SessionID int64
	Commands  bool
}

func NewConfigFromCLI() (*Config, error) {
	var c Config

	flag.StringVar(&c.DBPath, "db", "", "Path to the flight log database")
	flag.Int64Var(&c.SessionID, "s", 0, "Session ID. Omit to list sessions")
	flag.BoolVar(&c.Commands, "commands", false, "Dump the command audit trail instead of telemetry")
	flag.Parse()

	if c.DBPath == "" {
		flag.Usage()
		return nil, errors.New("db path is required")
	}

	return &c, nil
}
