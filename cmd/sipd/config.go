package main

import (
	"flag"
	"io/ioutil"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/pipeline"
)

// config holds the daemon settings. They are read from a TOML file and
// then from the command line, which takes precedence.
type config struct {
	Port      string `toml:"port"`
	PProfPort string `toml:"pprof_port"`

	// Storage is a location as understood by parselocation
	Storage string `toml:"storage"`
	MySQL   string `toml:"mysql"`
	QLPath  string `toml:"ql_path"`

	// AuthURL is the base URL of the authentication service. If empty,
	// TokenFile is used, and if that is empty there is no authentication.
	AuthURL   string `toml:"auth_url"`
	TokenFile string `toml:"token_file"`
	TokenTTL  string `toml:"token_ttl"`

	AuditURL string `toml:"audit_url"`

	Workers        int   `toml:"workers"`
	MaxEntries     int   `toml:"max_entries"`
	MaxEntrySize   int64 `toml:"max_entry_size"`
	MaxArchiveSize int64 `toml:"max_archive_size"`

	SentryDSN string `toml:"sentry_dsn"`
	LogLevel  string `toml:"log_level"`
}

func defaultConfig() config {
	return config{
		Port:           "14000",
		QLPath:         "memory",
		TokenTTL:       "5m",
		Workers:        pipeline.DefaultWorkers,
		MaxEntries:     bundle.DefaultLimits.MaxEntries,
		MaxEntrySize:   bundle.DefaultLimits.MaxEntrySize,
		MaxArchiveSize: bundle.DefaultLimits.MaxArchiveSize,
		LogLevel:       "info",
	}
}

func (c *config) limits() bundle.Limits {
	return bundle.Limits{
		MaxEntries:     c.MaxEntries,
		MaxEntrySize:   c.MaxEntrySize,
		MaxArchiveSize: c.MaxArchiveSize,
	}
}

func (c *config) tokenTTL() (time.Duration, error) {
	return time.ParseDuration(c.TokenTTL)
}

// loadConfig parses the command line args. If one of them names a config
// file, that file is read first and the other options override it.
func loadConfig(args []string) (*config, error) {
	var (
		fs         = flag.NewFlagSet("sipd", flag.ContinueOnError)
		configFile = fs.String("config", "", "TOML configuration file")
		flagvals   = make(map[string]*string)
	)
	fs.SetOutput(ioutil.Discard)
	for _, opt := range []struct{ name, usage string }{
		{"port", "port to listen on"},
		{"pprof-port", "port for the pprof server, if any"},
		{"storage", "location of the payload storage: a path, file:path, or s3://host/bucket/prefix"},
		{"mysql", "MySQL dial string for the metadata database"},
		{"ql", "file of the internal metadata database, or \"memory\""},
		{"auth-url", "base URL of the authentication service"},
		{"token-file", "file listing user names, roles, and tokens"},
		{"token-ttl", "how long token verifications are cached"},
		{"audit-url", "URL to post audit events to"},
		{"workers", "files handled at once per request"},
		{"sentry-dsn", "Sentry DSN for error reports"},
		{"log-level", "log level: debug, info, warn, error"},
	} {
		flagvals[opt.name] = fs.String(opt.name, "", opt.usage)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
			return nil, errors.Wrap(err, *configFile)
		}
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		p, ok := flagvals[f.Name]
		if !ok {
			// -config was handled above
			return
		}
		v := *p
		switch f.Name {
		case "port":
			cfg.Port = v
		case "pprof-port":
			cfg.PProfPort = v
		case "storage":
			cfg.Storage = v
		case "mysql":
			cfg.MySQL = v
		case "ql":
			cfg.QLPath = v
		case "auth-url":
			cfg.AuthURL = v
		case "token-file":
			cfg.TokenFile = v
		case "token-ttl":
			cfg.TokenTTL = v
		case "audit-url":
			cfg.AuditURL = v
		case "workers":
			cfg.Workers, err = strconv.Atoi(v)
		case "sentry-dsn":
			cfg.SentryDSN = v
		case "log-level":
			cfg.LogLevel = v
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "workers")
	}
	if _, err = cfg.tokenTTL(); err != nil {
		return nil, errors.Wrap(err, "token_ttl")
	}
	return &cfg, nil
}
