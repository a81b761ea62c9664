package main

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/ndlib/archivum/audit"
	"github.com/ndlib/archivum/identity"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("Received %v", err)
	}
	if cfg.Port != "14000" || cfg.QLPath != "memory" || cfg.Workers != 4 {
		t.Errorf("Received %+v", cfg)
	}
	if ttl, _ := cfg.tokenTTL(); ttl != 5*time.Minute {
		t.Errorf("Received %v, expected 5m", ttl)
	}
}

func TestConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "sipd.toml")
	err := ioutil.WriteFile(fname, []byte(`
port = "15000"
storage = "s3://localhost:9000/archive"
mysql = "/archive?parseTime=true"
workers = 8
max_entries = 50
token_ttl = "1m"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig([]string{"-config", fname, "-port", "16000", "-workers", "2"})
	if err != nil {
		t.Fatalf("Received %v", err)
	}
	var table = []struct {
		name     string
		received interface{}
		expect   interface{}
	}{
		{"port", cfg.Port, "16000"},
		{"storage", cfg.Storage, "s3://localhost:9000/archive"},
		{"mysql", cfg.MySQL, "/archive?parseTime=true"},
		{"workers", cfg.Workers, 2},
		{"max_entries", cfg.limits().MaxEntries, 50},
		{"token_ttl", cfg.TokenTTL, "1m"},
	}
	for _, row := range table {
		if row.received != row.expect {
			t.Errorf("%s: Received %v, expected %v", row.name, row.received, row.expect)
		}
	}
}

func TestConfigFileOnly(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "sipd.toml")
	err := ioutil.WriteFile(fname, []byte("port = \"15001\"\nworkers = 3\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig([]string{"-config", fname})
	if err != nil {
		t.Fatalf("Received %v", err)
	}
	if cfg.Port != "15001" || cfg.Workers != 3 {
		t.Errorf("Received port %q workers %d, expected 15001 and 3", cfg.Port, cfg.Workers)
	}
	if cfg.Storage != defaultConfig().Storage {
		t.Errorf("Received storage %q, expected the default %q", cfg.Storage, defaultConfig().Storage)
	}
}

func TestConfigErrors(t *testing.T) {
	var table = [][]string{
		{"-workers", "many"},
		{"-token-ttl", "forever"},
		{"-config", "/does/not/exist.toml"},
		{"-unknown"},
	}
	for _, args := range table {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("%v: Received nil, expected an error", args)
		}
	}
}

func TestMakeVerifier(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "tokens")
	ioutil.WriteFile(fname, []byte("alice user abc\n"), 0644)

	cfg := defaultConfig()
	v, err := makeVerifier(&cfg)
	if v != nil || err != nil {
		t.Errorf("Received %v, %v, expected nil", v, err)
	}
	cfg.TokenFile = fname
	v, err = makeVerifier(&cfg)
	if err != nil {
		t.Fatalf("Received %v", err)
	}
	u, _ := v.Verify(context.Background(), "abc")
	if u != (identity.User{Name: "alice", Role: identity.RoleUser}) {
		t.Errorf("Received %v", u)
	}
	cfg.AuthURL = "http://localhost:13000"
	v, _ = makeVerifier(&cfg)
	if _, ok := v.(*identity.Cached); !ok {
		t.Errorf("Received %T, expected *identity.Cached", v)
	}
}

func TestMakeAudit(t *testing.T) {
	cfg := defaultConfig()
	if _, ok := makeAudit(&cfg).(audit.Logrus); !ok {
		t.Errorf("Received %T, expected audit.Logrus", makeAudit(&cfg))
	}
	cfg.AuditURL = "http://localhost:13001/logs"
	if m, ok := makeAudit(&cfg).(audit.Multi); !ok || len(m) != 2 {
		t.Errorf("Received %T, expected audit.Multi", makeAudit(&cfg))
	}
}
