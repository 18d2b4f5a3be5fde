package config

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/discshelf/internal/flagx"
	"github.com/dmitrijs2005/discshelf/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig mirrors Config for decoding. Durations use timex.Duration.
type JsonConfig struct {
	DatabasePath   string           `json:"database_path"`
	Backend        Backend          `json:"backend"`
	SyncMode       SyncMode         `json:"sync_mode"`
	SignInTimeout  timex.Duration   `json:"sign_in_timeout"`
	SkewBuffer     timex.Duration   `json:"skew_buffer"`
	FuzzyThreshold float64          `json:"fuzzy_threshold"`
	Breaker        bool             `json:"breaker"`
	Log            LogConfig        `json:"log"`
	Bucket         BucketConfig     `json:"bucket"`
	Relational     RelationalConfig `json:"relational"`
	Docstore       DocstoreConfig   `json:"docstore"`
}

// parseJson overlays cfg with the file named by -c/-config. Keys missing from
// the file keep their current values.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	jc := JsonConfig{
		DatabasePath:   cfg.DatabasePath,
		Backend:        cfg.Backend,
		SyncMode:       cfg.SyncMode,
		SignInTimeout:  timex.Duration{Duration: cfg.SignInTimeout},
		SkewBuffer:     timex.Duration{Duration: cfg.SkewBuffer},
		FuzzyThreshold: cfg.FuzzyThreshold,
		Breaker:        cfg.Breaker,
		Log:            cfg.Log,
		Bucket:         cfg.Bucket,
		Relational:     cfg.Relational,
		Docstore:       cfg.Docstore,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.DatabasePath = jc.DatabasePath
	cfg.Backend = jc.Backend
	cfg.SyncMode = jc.SyncMode
	cfg.SignInTimeout = jc.SignInTimeout.Duration
	cfg.SkewBuffer = jc.SkewBuffer.Duration
	cfg.FuzzyThreshold = jc.FuzzyThreshold
	cfg.Breaker = jc.Breaker
	cfg.Log = jc.Log
	cfg.Bucket = jc.Bucket
	cfg.Relational = jc.Relational
	cfg.Docstore = jc.Docstore
	return nil
}
