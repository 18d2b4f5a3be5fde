package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/flagx"
)

// parseFlags overlays cfg with the flags it owns; other arguments are
// ignored.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-b", "-m", "-t", "-f", "-l", "-o"})

	fs := flag.NewFlagSet("discshelf", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	backend := fs.String("b", string(cfg.Backend), "sync backend: none, bucket, relational, docstore")
	mode := fs.String("m", string(cfg.SyncMode), "sync mode: manual or live")
	timeout := fs.Int("t", int(cfg.SignInTimeout.Seconds()), "sign-in timeout (in seconds)")
	fs.Float64Var(&cfg.FuzzyThreshold, "f", cfg.FuzzyThreshold, "fuzzy match threshold")
	fs.StringVar(&cfg.Log.Level, "l", cfg.Log.Level, "log level")
	fs.StringVar(&cfg.Log.File, "o", cfg.Log.File, "log file")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "b":
			cfg.Backend = Backend(*backend)
		case "m":
			cfg.SyncMode = SyncMode(*mode)
		case "t":
			cfg.SignInTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
