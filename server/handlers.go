package server

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"net/http"

	"github.com/antonholmquist/jason"
	"github.com/dustin/go-humanize"
	raven "github.com/getsentry/raven-go"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/audit"
	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/fixity"
	"github.com/ndlib/archivum/identity"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/pipeline"
	"github.com/ndlib/archivum/records"
)

var (
	errForbidden = errors.New("forbidden")
	errTooLarge  = errors.New("package too large")
	errNoPackage = errors.New("no package received")
)

// IngestHandler handles requests to POST /api/ingest. The package is either
// the whole body or the multipart form field "sip".
func (s *RESTServer) IngestHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	u := caller(r)
	data, err := readPackage(r, s.Limits.MaxArchiveSize)
	if err != nil {
		ingestOutcomes.WithLabelValues("rejected").Inc()
		s.writeError(w, r, err)
		return
	}
	log.WithField("user", u.Name).Println("ingest: received", humanize.Bytes(uint64(len(data))))
	receipt, err := s.ingester.IngestChecked(r.Context(), data, func(m *manifest.Manifest) error {
		if !u.Can(m.Submitter) {
			return errors.Wrapf(errForbidden, "cannot submit as %q", m.Submitter)
		}
		return nil
	})
	if err != nil {
		ingestOutcomes.WithLabelValues(outcome(err)).Inc()
		s.writeError(w, r, err)
		return
	}
	ingestOutcomes.WithLabelValues("success").Inc()
	ingestedBytes.Add(float64(len(data)))
	s.audit(r.Context(), u, audit.Ingest, receipt.Record.ID)

	var ids []string
	for _, fd := range receipt.Files {
		ids = append(ids, fd.ID)
	}
	received := receipt.Received
	if received == nil {
		received = []fixity.Entry{}
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, 201, struct {
		Message       string                  `json:"message"`
		Record        *records.MetadataRecord `json:"record"`
		Files         []string                `json:"files"`
		ReceivedFiles []fixity.Entry          `json:"receivedFiles"`
	}{
		Message:       "SIP ingested successfully",
		Record:        receipt.Record,
		Files:         ids,
		ReceivedFiles: received,
	})
}

// readPackage reads at most limit bytes of the request package.
func readPackage(r *http.Request, limit int64) ([]byte, error) {
	var body io.Reader = r.Body
	mediatype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediatype == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, errNoPackage
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				// io.EOF means there was no sip field
				return nil, errNoPackage
			}
			if part.FormName() == "sip" {
				body = part
				break
			}
			part.Close()
		}
	}
	data, err := ioutil.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, errors.Wrap(errNoPackage, err.Error())
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	if len(data) == 0 {
		return nil, errNoPackage
	}
	return data, nil
}

// outcome labels an ingestion failure for the metrics.
func outcome(err error) string {
	var ve *pipeline.VerificationError
	switch {
	case errors.As(err, &ve):
		return "verification"
	case errors.Is(err, manifest.ErrInvalid):
		return "invalid"
	case errors.Is(err, bundle.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, errForbidden):
		return "forbidden"
	}
	return "error"
}

// writeError sends the response for err. Client errors are described;
// anything else is logged and reported as an internal error.
func (s *RESTServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *pipeline.VerificationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, 400, messageBody{Message: "SIP verification failed", Errors: ve.Problems})
	case errors.Is(err, manifest.ErrInvalid):
		writeJSON(w, 400, message("Invalid manifest: "+err.Error()))
	case errors.Is(err, bundle.ErrCorrupt):
		writeJSON(w, 400, message("Corrupt archive"))
	case errors.Is(err, errNoPackage):
		writeJSON(w, 400, message("No SIP file received"))
	case errors.Is(err, errTooLarge):
		writeJSON(w, 413, message("SIP file too large"))
	case errors.Is(err, errForbidden):
		writeJSON(w, 403, message("Forbidden"))
	case errors.Is(err, records.ErrNotFound):
		writeJSON(w, 404, message("Not found"))
	case errors.Is(err, context.Canceled):
		// the client went away
		log.WithField("url", r.URL.String()).Println("request canceled")
	default:
		log.WithField("url", r.URL.String()).Errorln(err)
		raven.CaptureError(err, map[string]string{"url": r.URL.Path})
		writeJSON(w, 500, message("Internal server error"))
	}
}

func (s *RESTServer) audit(ctx context.Context, u identity.User, action, target string) {
	name := u.Name
	if name == "" {
		name = "anonymous"
	}
	audit.Record(ctx, s.Audit, audit.Event{
		User:      name,
		Timestamp: s.Clock.Now(),
		Action:    action,
		Target:    target,
	})
}

// VisibleHandler handles GET /api/publications/visible, returning every
// public record as one batch.
func (s *RESTServer) VisibleHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.sendBatch(w, r, records.Query{PublicOnly: true}, "publications.zip")
}

// UserHandler handles GET /api/publications/user/:username, returning the
// public records of one user.
func (s *RESTServer) UserHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")
	s.sendBatch(w, r, records.Query{Owner: username, PublicOnly: true}, username+".zip")
}

// SelfHandler handles GET /api/publications/self/:username, returning all
// the records of the caller. Administrators may ask for anyone.
func (s *RESTServer) SelfHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	username := ps.ByName("username")
	if !caller(r).Can(username) {
		s.writeError(w, r, errForbidden)
		return
	}
	s.sendBatch(w, r, records.Query{Owner: username}, username+".zip")
}

func (s *RESTServer) sendBatch(w http.ResponseWriter, r *http.Request, q records.Query, filename string) {
	recs, err := s.DB.ListRecords(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.rc.AssembleBatch(r.Context(), recs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	packagesBuilt.WithLabelValues("batch").Inc()
	s.audit(r.Context(), caller(r), audit.Retrieve, q.Owner)
	writeZip(w, filename, data)
}

// getVisible returns the record named in the route if the caller may see it.
func (s *RESTServer) getVisible(r *http.Request, ps httprouter.Params) (*records.MetadataRecord, error) {
	rec, err := s.DB.GetRecord(r.Context(), ps.ByName("id"))
	if err != nil {
		return nil, err
	}
	if !rec.Visibility.IsPublic() && !caller(r).Can(rec.Owner) {
		return nil, errForbidden
	}
	return rec, nil
}

// RecordHandler handles GET /api/publications/record/:id, returning the
// dissemination package of one record.
func (s *RESTServer) RecordHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, err := s.getVisible(r, ps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.rc.Reconstruct(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	packagesBuilt.WithLabelValues("single").Inc()
	s.audit(r.Context(), caller(r), audit.Retrieve, rec.ID)
	writeZip(w, pipeline.BatchName(rec), data)
}

// RecordInfoHandler handles GET /api/publications/record/:id/info,
// returning the record as JSON.
func (s *RESTServer) RecordInfoHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, err := s.getVisible(r, ps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, rec)
}

// CommentHandler handles POST /api/publications/record/:id/comments. The
// body is a JSON object with a "comment" field.
func (s *RESTServer) CommentHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	u := caller(r)
	rec, err := s.getVisible(r, ps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := jason.NewObjectFromReader(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, 400, message("Body must be a JSON object"))
		return
	}
	text, _ := body.GetString("comment")
	if text == "" {
		writeJSON(w, 400, message("comment missing"))
		return
	}
	c := manifest.Comment{Username: u.Name, Text: text, Date: s.Clock.Now()}
	if err = s.DB.AddComment(r.Context(), rec.ID, c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r.Context(), u, audit.Comment, rec.ID)
	writeJSON(w, 201, c)
}

// VisibilityHandler handles PUT
// /api/publications/record/:id/visibility/:visibility. Only the owner or
// an administrator may change it.
func (s *RESTServer) VisibilityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	u := caller(r)
	v, ok := manifest.ParseVisibility(ps.ByName("visibility"))
	if !ok {
		writeJSON(w, 400, message(fmt.Sprintf("unknown visibility %q", ps.ByName("visibility"))))
		return
	}
	rec, err := s.DB.GetRecord(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !u.Can(rec.Owner) {
		s.writeError(w, r, errForbidden)
		return
	}
	if err = s.DB.SetVisibility(r.Context(), rec.ID, v, s.Clock.Now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r.Context(), u, audit.Visibility, rec.ID)
	writeJSON(w, 200, struct {
		ID         string              `json:"id"`
		Visibility manifest.Visibility `json:"visibility"`
	}{rec.ID, v})
}

func writeZip(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}
