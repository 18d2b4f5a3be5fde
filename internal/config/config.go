// Package config loads discshelf settings.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (LoadDefaults).
//  2. Optional JSON file given with -c or -config.
//  3. Command-line flags.
//
// Flags
//
//	-d string   local database path
//	-b string   sync backend: none, bucket, relational, docstore
//	-m string   sync mode: manual or live
//	-t int      sign-in timeout, seconds
//	-f float    fuzzy match threshold in (0,1]
//	-l string   log level
//	-o string   log file (rotated); stderr when empty
//
// Backend specific settings only come from the JSON file:
//
//	{
//	  "backend": "bucket",
//	  "sign_in_timeout": "2m",
//	  "bucket": {"store": "s3", "s3": {"bucket": "shelf", "region": "eu-west-1"}},
//	  "relational": {"dsn": "postgres://...", "auth_url": "https://.../auth/v1"},
//	  "docstore": {"client_id": "...", "client_secret": "..."}
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/conflict"
	"github.com/dmitrijs2005/discshelf/internal/fuzzy"
)

// Backend selects the remote adapter.
type Backend string

const (
	BackendNone       Backend = "none"
	BackendBucket     Backend = "bucket"
	BackendRelational Backend = "relational"
	BackendDocstore   Backend = "docstore"
)

// SyncMode selects how changes reach the backend.
type SyncMode string

const (
	ModeManual SyncMode = "manual"
	ModeLive   SyncMode = "live"
)

const (
	StoreHTTP = "http"
	StoreS3   = "s3"
)

type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	PathStyle bool   `json:"path_style"`
}

type BucketConfig struct {
	Store  string   `json:"store"`
	URL    string   `json:"url"`
	APIKey string   `json:"api_key"`
	S3     S3Config `json:"s3"`
}

type RelationalConfig struct {
	DSN     string `json:"dsn"`
	AuthURL string `json:"auth_url"`
	APIKey  string `json:"api_key"`
	// RealtimeURL selects the websocket gateway feed; empty means
	// LISTEN/NOTIFY over DSN.
	RealtimeURL string `json:"realtime_url"`
	PageSize    int    `json:"page_size"`
	Migrate     bool   `json:"migrate"`
	Email       string `json:"email"`
}

type DocstoreConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url"`
	TokenURL     string `json:"token_url"`
	ListenAddr   string `json:"listen_addr"`
	// ManualCode asks for the authorization code on stdin instead of
	// running a loopback listener.
	ManualCode bool   `json:"manual_code"`
	APIURL     string `json:"api_url"`
	UploadURL  string `json:"upload_url"`
	FileName   string `json:"file_name"`
	TokenFile  string `json:"token_file"`
}

// Config holds runtime settings.
type Config struct {
	DatabasePath   string
	Backend        Backend
	SyncMode       SyncMode
	SignInTimeout  time.Duration
	SkewBuffer     time.Duration
	FuzzyThreshold float64
	Breaker        bool
	Log            LogConfig
	Bucket         BucketConfig
	Relational     RelationalConfig
	Docstore       DocstoreConfig
}

const (
	DefaultSignInTimeout = 2 * time.Minute
	DefaultDatabaseFile  = "discshelf.db"
)

// LoadDefaults populates c with defaults. Backend is left empty so a value
// remembered by the local store can fill it.
func (c *Config) LoadDefaults() {
	c.DatabasePath = ""
	c.Backend = ""
	c.SyncMode = ""
	c.SignInTimeout = DefaultSignInTimeout
	c.SkewBuffer = conflict.DefaultSkewBuffer
	c.FuzzyThreshold = fuzzy.DefaultThreshold
	c.Breaker = true
	c.Log = LogConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 3}
	c.Bucket = BucketConfig{Store: StoreHTTP, S3: S3Config{Region: "us-east-1", Key: "discshelf.json"}}
	c.Relational = RelationalConfig{PageSize: 500}
	c.Docstore = DocstoreConfig{
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
}

// Load applies defaults, the JSON file named in args and then the flags in
// args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FillStored completes unset choices with values remembered from the last
// run and falls back to none/manual.
func (c *Config) FillStored(backend, mode string) {
	if c.Backend == "" {
		c.Backend = Backend(backend)
	}
	if c.Backend == "" {
		c.Backend = BackendNone
	}
	if c.SyncMode == "" {
		c.SyncMode = SyncMode(mode)
	}
	if c.SyncMode == "" {
		c.SyncMode = ModeManual
	}
}

// Validate checks the selected backend. Missing settings wrap
// ErrNotConfigured, which starts the sync core disabled. Invalid values wrap
// ErrValidation.
func (c *Config) Validate() error {
	switch c.SyncMode {
	case "", ModeManual, ModeLive:
	default:
		return fmt.Errorf("%w: unknown sync mode %q", common.ErrValidation, c.SyncMode)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("%w: fuzzy threshold %v not in (0,1]", common.ErrValidation, c.FuzzyThreshold)
	}
	if c.SignInTimeout <= 0 {
		return fmt.Errorf("%w: sign-in timeout must be positive", common.ErrValidation)
	}

	var missing []string
	switch c.Backend {
	case "", BackendNone:
		return fmt.Errorf("%w: no sync backend selected", common.ErrNotConfigured)
	case BackendBucket:
		switch c.Bucket.Store {
		case StoreHTTP, "":
			if c.Bucket.URL == "" {
				missing = append(missing, "bucket.url")
			}
		case StoreS3:
			if c.Bucket.S3.Bucket == "" {
				missing = append(missing, "bucket.s3.bucket")
			}
			if c.Bucket.S3.Key == "" {
				missing = append(missing, "bucket.s3.key")
			}
		default:
			return fmt.Errorf("%w: unknown bucket store %q", common.ErrValidation, c.Bucket.Store)
		}
	case BackendRelational:
		if c.Relational.DSN == "" {
			missing = append(missing, "relational.dsn")
		}
		if c.Relational.AuthURL == "" {
			missing = append(missing, "relational.auth_url")
		}
	case BackendDocstore:
		if c.Docstore.ClientID == "" {
			missing = append(missing, "docstore.client_id")
		}
		if c.Docstore.TokenURL == "" {
			missing = append(missing, "docstore.token_url")
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", common.ErrValidation, c.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s backend needs %s", common.ErrNotConfigured, c.Backend, strings.Join(missing, ", "))
	}
	return nil
}
