package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"strconv"
	"time"

	"github.com/facebookgo/clock"
	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/audit"
	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/identity"
	"github.com/ndlib/archivum/pipeline"
	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/store"
)

// Version is reported on the welcome page and in the log.
var Version = "dev"

// RESTServer holds the configuration for the archive REST API server.
//
// Set the public fields and then call Run. Run will listen on the given
// port and handle requests. Do not change any fields after calling Run.
// It should be enough to set Blobs and one of MySQL or QLPath.
type RESTServer struct {
	// Port number to listen on. defaults to 14000
	PortNumber string
	PProfPort  string

	// Blobs holds the payload files. Run will panic if Blobs is nil.
	Blobs store.Store

	// DB is the metadata database. If it is nil one is opened: a MySQL
	// server if MySQL is set, otherwise the QL database in the file
	// QLPath. The special QLPath "memory" (the default) keeps the database
	// entirely inside the server's memory, which is useful for testing.
	// e.g. MySQL "user:password@tcp(localhost:5555)/dbname?parseTime=true"
	DB     records.DB
	MySQL  string
	QLPath string

	// Verifier authenticates the tokens presented to the API. If this
	// is nil every caller is treated as an administrator.
	Verifier identity.Verifier

	// Audit receives an event after every successful operation. If nil
	// events are written to the log.
	Audit audit.Logger

	// Workers bounds how many files are verified, stored or read at once
	// for a single request.
	Workers int

	// Limits bounds the packages accepted for ingestion. The zero value
	// uses bundle.DefaultLimits.
	Limits bundle.Limits

	// Clock is used for timestamps. nil means the system clock.
	Clock clock.Clock

	server   httpdown.Server // used to close our listening socket
	ingester *pipeline.Ingester
	rc       *pipeline.Reconstructor
}

// Init fills in defaults and opens the database. Run calls it, so it only
// needs to be called directly when using Handler without Run.
func (s *RESTServer) Init() error {
	if s.Blobs == nil {
		panic("No base storage given. Blobs is nil.")
	}
	if s.PortNumber == "" {
		s.PortNumber = "14000"
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.Verifier == nil {
		log.Println("No Verifier given")
		s.Verifier = identity.NewNobody()
	}
	if s.Audit == nil {
		s.Audit = audit.Logrus{}
	}
	if s.Limits == (bundle.Limits{}) {
		s.Limits = bundle.DefaultLimits
	}
	if s.Workers < 1 {
		s.Workers = pipeline.DefaultWorkers
	}
	if s.DB == nil {
		var err error
		if s.MySQL != "" {
			log.Println("Using MySQL")
			s.DB, err = records.NewMysqlDB(s.MySQL)
		} else {
			if s.QLPath == "" {
				s.QLPath = "memory"
			}
			log.Println("Using internal database at", s.QLPath)
			s.DB, err = records.NewQlDB(s.QLPath)
		}
		if err != nil {
			return err
		}
	}
	s.ingester = pipeline.NewIngester(s.Blobs, s.DB)
	s.ingester.Limits = s.Limits
	s.ingester.Workers = s.Workers
	s.ingester.Store.Clock = s.Clock
	s.ingester.Indexer.Clock = s.Clock
	s.rc = &pipeline.Reconstructor{
		Blobs:   s.Blobs,
		DB:      s.DB,
		Clock:   s.Clock,
		Workers: s.Workers,
	}
	return nil
}

// Run initializes the server and then blocks listening for and handling
// http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting Archivum Server version %s", Version)

	if err := s.Init(); err != nil {
		log.Println(err)
		return err
	}

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{
		StopTimeout: 30 * time.Second,
		KillTimeout: 5 * time.Second,
		Clock:       s.Clock,
	}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.Handler(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the connections have
// finished and the socket is closed.
func (s *RESTServer) Stop() error {
	err := s.server.Stop()
	if s.DB != nil {
		s.DB.Close()
	}
	return err
}

// Handler returns the routes of the API.
func (s *RESTServer) Handler() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    identity.Role // RoleUnknown means no token is needed
		handler httprouter.Handle
	}{
		{"POST", "/api/ingest", identity.RoleUser, s.IngestHandler},

		{"GET", "/api/publications/visible", identity.RoleUnknown, s.VisibleHandler},
		{"GET", "/api/publications/user/:username", identity.RoleUnknown, s.UserHandler},
		{"GET", "/api/publications/self/:username", identity.RoleUser, s.SelfHandler},
		{"GET", "/api/publications/record/:id", identity.RoleUnknown, s.RecordHandler},
		{"GET", "/api/publications/record/:id/info", identity.RoleUnknown, s.RecordInfoHandler},
		{"POST", "/api/publications/record/:id/comments", identity.RoleUser, s.CommentHandler},
		{"PUT", "/api/publications/record/:id/visibility/:visibility", identity.RoleUser, s.VisibilityHandler},

		// other
		{"GET", "/", identity.RoleUnknown, WelcomeHandler},
		{"GET", "/metrics", identity.RoleUnknown, MetricsHandler},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(route.route, s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// MetricsHandler adapts the prometheus handler to the httprouter three
// parameter handler.
func MetricsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	promhttp.Handler().ServeHTTP(w, r)
}

type callerKey struct{}

// caller returns the verified user making the request. Anonymous callers
// get the zero User.
func caller(r *http.Request) identity.User {
	u, _ := r.Context().Value(callerKey{}).(identity.User)
	return u
}

// requestToken finds the token in the Authorization header, the "token"
// query parameter or the X-Api-Key header, in that order.
func requestToken(r *http.Request) string {
	if t := identity.TokenFromHeader(r.Header.Get("Authorization")); t != "" {
		return t
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return r.Header.Get("X-Api-Key")
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The verified user is available to the
// handler through caller().
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole identity.Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := requestToken(r)
		var user identity.User
		if token != "" || leastRole > identity.RoleUnknown {
			var err error
			user, err = s.Verifier.Verify(r.Context(), token)
			if err != nil {
				log.WithError(err).Errorln("verifying token")
				writeJSON(w, 500, message("unable to verify token"))
				return
			}
		}
		if user.Role < leastRole {
			writeJSON(w, 401, message("Forbidden"))
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, user)
		handler(w, r.WithContext(ctx), ps)
	}
}

// statusWriter remembers the status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// logWrapper takes a handler and returns a handler which does the same
// thing, logging the request and counting it in the metrics.
func logWrapper(route string, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		httpRequests.WithLabelValues(route, r.Method).Inc()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		handler(sw, r, ps)
		elapsed := time.Since(start)
		httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		httpResponses.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		log.WithFields(log.Fields{
			"status":  sw.status,
			"elapsed": elapsed,
		}).Println(r.Method, r.URL)
	}
}

// WelcomeHandler names the server and its version.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "Archivum (%s)\n", Version)
}

type messageBody struct {
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}

func message(s string) messageBody {
	return messageBody{Message: s}
}

func writeJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(val)
}
