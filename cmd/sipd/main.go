// Command sipd runs the archive REST API server.
//
// Settings come from an optional TOML file given with -config and from
// command line options, which override the file. Run "sipd -h" for the
// list of options.
package main

import (
	"os"
	"os/signal"
	"syscall"

	raven "github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/audit"
	"github.com/ndlib/archivum/identity"
	"github.com/ndlib/archivum/server"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalln(err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.SentryDSN != "" {
		raven.SetDSN(cfg.SentryDSN)
	}

	blobs, err := parselocation(cfg.Storage, "")
	if err != nil {
		log.Fatalln("storage:", err)
	}
	verifier, err := makeVerifier(cfg)
	if err != nil {
		log.Fatalln("verifier:", err)
	}

	s := &server.RESTServer{
		PortNumber: cfg.Port,
		PProfPort:  cfg.PProfPort,
		Blobs:      blobs,
		MySQL:      cfg.MySQL,
		QLPath:     cfg.QLPath,
		Verifier:   verifier,
		Audit:      makeAudit(cfg),
		Workers:    cfg.Workers,
		Limits:     cfg.limits(),
	}

	go signalHandler(s)
	if err = s.Run(); err != nil {
		log.Fatalln(err)
	}
}

// makeVerifier picks the token verifier. A nil result means every
// caller is trusted.
func makeVerifier(cfg *config) (identity.Verifier, error) {
	switch {
	case cfg.AuthURL != "":
		ttl, err := cfg.tokenTTL()
		if err != nil {
			return nil, err
		}
		return identity.NewCached(&identity.HTTP{BaseURL: cfg.AuthURL}, ttl, 2*ttl), nil
	case cfg.TokenFile != "":
		return identity.NewListFile(cfg.TokenFile)
	}
	log.Println("No authentication configured")
	return nil, nil
}

func makeAudit(cfg *config) audit.Logger {
	if cfg.AuditURL == "" {
		return audit.Logrus{}
	}
	return audit.Multi{&audit.HTTP{URL: cfg.AuditURL}, audit.Logrus{}}
}

func signalHandler(s *server.RESTServer) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Println("Received signal", sig)
	if err := s.Stop(); err != nil {
		log.Println(err)
	}
}
