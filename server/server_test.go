package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"

	"github.com/ndlib/archivum/audit"
	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/identity"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/store"
	"github.com/ndlib/archivum/util"
)

const users = `
alice user alicetoken
bob   user bobtoken
root  admin roottoken
`

const gpx = `<?xml version="1.0"?><gpx version="1.1"><trk><name>Run</name></trk></gpx>`

type memAudit struct {
	m      sync.Mutex
	events []audit.Event
}

func (ma *memAudit) Log(ctx context.Context, e audit.Event) error {
	ma.m.Lock()
	ma.events = append(ma.events, e)
	ma.m.Unlock()
	return nil
}

func (ma *memAudit) actions() []string {
	ma.m.Lock()
	defer ma.m.Unlock()
	var result []string
	for _, e := range ma.events {
		result = append(result, e.User+":"+e.Action)
	}
	return result
}

type testEnv struct {
	srv   *httptest.Server
	s     *RESTServer
	audit *memAudit
}

func newTestEnv(t *testing.T) *testEnv {
	v, err := identity.NewListString(users)
	if err != nil {
		t.Fatal(err)
	}
	mock := clock.NewMock()
	mock.Add(1000 * time.Hour)
	env := &testEnv{audit: &memAudit{}}
	env.s = &RESTServer{
		Blobs:    store.NewMemory(),
		QLPath:   "memory",
		Verifier: v,
		Audit:    env.audit,
		Clock:    mock,
	}
	if err = env.s.Init(); err != nil {
		t.Fatal(err)
	}
	env.srv = httptest.NewServer(env.s.Handler())
	return env
}

func (env *testEnv) Close() {
	env.srv.Close()
	env.s.DB.Close()
}

// makeSIP returns a package from submitter with one file. A non-empty
// checksum replaces the correct one.
func makeSIP(t *testing.T, submitter, checksum string) []byte {
	if checksum == "" {
		checksum = util.SHA256Hex([]byte(gpx))
	}
	var buf bytes.Buffer
	w := bundle.NewWriter(&buf, time.Time{})
	w.Add("data/run.gpx", []byte(gpx))
	mb, _ := json.Marshal(map[string]interface{}{
		"submitter":    submitter,
		"title":        "Run",
		"resourceType": "sport",
		"sport":        "running",
		"files": []map[string]interface{}{
			{
				"filePath": "data/run.gpx",
				"checksum": map[string]string{"algorithm": "SHA-256", "value": checksum},
				"mimeType": "application/gpx+xml",
				"size":     len(gpx),
			},
		},
	})
	w.Add(manifest.Name, mb)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (env *testEnv) do(t *testing.T, verb, route, token string, body io.Reader, contentType string) *http.Response {
	req, err := http.NewRequest(verb, env.srv.URL+route, body)
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
	}
	return resp
}

// checkRoute performs the request and returns the body if the status is
// as expected.
func (env *testEnv) checkRoute(t *testing.T, verb, route, token string, body []byte, expstatus int) []byte {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	resp := env.do(t, verb, route, token, r, "")
	defer resp.Body.Close()
	result, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(route, err)
	}
	if resp.StatusCode != expstatus {
		t.Errorf("%s %s: Expected status %d and received %d (%s)",
			verb,
			route,
			expstatus,
			resp.StatusCode,
			result)
	}
	return result
}

type ingestReply struct {
	Message string `json:"message"`
	Record  struct {
		ID         string `json:"id"`
		Sport      string `json:"sport"`
		Visibility string `json:"visibility"`
	} `json:"record"`
	Files         []string `json:"files"`
	ReceivedFiles []struct {
		File   string `json:"file"`
		Status string `json:"status"`
	} `json:"receivedFiles"`
	Errors []struct {
		File   string `json:"file"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (env *testEnv) ingest(t *testing.T, token string, sip []byte, expstatus int) ingestReply {
	var reply ingestReply
	body := env.checkRoute(t, "POST", "/api/ingest", token, sip, expstatus)
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Errorf("Received %s, %s", body, err)
	}
	return reply
}

func zipEntries(t *testing.T, data []byte) []string {
	r, err := bundle.OpenBytes(data, bundle.DefaultLimits)
	if err != nil {
		t.Fatalf("Received %v", err)
	}
	return r.Entries()
}

func TestWelcome(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	body := env.checkRoute(t, "GET", "/", "", nil, 200)
	if !strings.HasPrefix(string(body), "Archivum") {
		t.Errorf("Received %q", body)
	}
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	env.checkRoute(t, "POST", "/api/ingest", "", makeSIP(t, "alice", ""), 401)
	env.checkRoute(t, "POST", "/api/ingest", "badtoken", makeSIP(t, "alice", ""), 401)
	env.checkRoute(t, "POST", "/api/ingest", "bobtoken", makeSIP(t, "alice", ""), 403)
	env.checkRoute(t, "POST", "/api/ingest", "alicetoken", []byte("not a zip"), 400)
	env.checkRoute(t, "POST", "/api/ingest", "alicetoken", nil, 400)

	reply := env.ingest(t, "alicetoken", makeSIP(t, "alice", ""), 201)
	if reply.Record.ID == "" || reply.Record.Sport != "running" || reply.Record.Visibility != "private" {
		t.Errorf("Received %+v", reply.Record)
	}
	if len(reply.Files) != 1 || len(reply.ReceivedFiles) != 1 || reply.ReceivedFiles[0].Status != "valid" {
		t.Errorf("Received %+v", reply)
	}

	// administrators may submit for anyone
	env.ingest(t, "roottoken", makeSIP(t, "alice", ""), 201)

	reply = env.ingest(t, "alicetoken", makeSIP(t, "alice", strings.Repeat("0", 64)), 400)
	if len(reply.Errors) != 1 || reply.Errors[0].Status != "invalid" || reply.Errors[0].File != "data/run.gpx" {
		t.Errorf("Received %+v", reply.Errors)
	}

	expect := []string{"alice:ingest", "root:ingest"}
	if got := env.audit.actions(); strings.Join(got, ",") != strings.Join(expect, ",") {
		t.Errorf("Received %v, expected %v", got, expect)
	}
}

func TestIngestMultipart(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("note", "ignored")
	fw, _ := mw.CreateFormFile("sip", "run.zip")
	fw.Write(makeSIP(t, "alice", ""))
	mw.Close()

	resp := env.do(t, "POST", "/api/ingest", "alicetoken", &body, mw.FormDataContentType())
	resp.Body.Close()
	if resp.StatusCode != 201 {
		t.Errorf("Received %d, expected 201", resp.StatusCode)
	}

	body.Reset()
	mw = multipart.NewWriter(&body)
	mw.WriteField("note", "no package here")
	mw.Close()
	resp = env.do(t, "POST", "/api/ingest", "alicetoken", &body, mw.FormDataContentType())
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("Received %d, expected 400", resp.StatusCode)
	}
}

func TestIngestTooLarge(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	env.s.ingester.Limits.MaxArchiveSize = 100
	env.s.Limits.MaxArchiveSize = 100
	env.checkRoute(t, "POST", "/api/ingest", "alicetoken", makeSIP(t, "alice", ""), 413)
}

func TestPublications(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	id := env.ingest(t, "alicetoken", makeSIP(t, "alice", ""), 201).Record.ID
	record := "/api/publications/record/" + id

	// private records are only available to the owner and administrators
	env.checkRoute(t, "GET", record, "", nil, 403)
	env.checkRoute(t, "GET", record, "bobtoken", nil, 403)
	env.checkRoute(t, "GET", record+"/info", "bobtoken", nil, 403)
	dip := env.checkRoute(t, "GET", record, "alicetoken", nil, 200)
	entries := strings.Join(zipEntries(t, dip), ",")
	for _, name := range []string{manifest.Name, "data/run.gpx", "metadata/run.gpx.json"} {
		if !strings.Contains(entries, name) {
			t.Errorf("Received %s, expected it to contain %s", entries, name)
		}
	}
	env.checkRoute(t, "GET", record, "roottoken", nil, 200)
	env.checkRoute(t, "GET", "/api/publications/record/nope", "alicetoken", nil, 404)

	if n := len(zipEntries(t, env.checkRoute(t, "GET", "/api/publications/visible", "", nil, 200))); n != 0 {
		t.Errorf("Received %d entries, expected 0", n)
	}
	self := env.checkRoute(t, "GET", "/api/publications/self/alice", "alicetoken", nil, 200)
	if got := zipEntries(t, self); len(got) != 1 || got[0] != id+".zip" {
		t.Errorf("Received %v, expected [%s.zip]", got, id)
	}
	env.checkRoute(t, "GET", "/api/publications/self/alice", "bobtoken", nil, 403)
	env.checkRoute(t, "GET", "/api/publications/self/alice", "", nil, 401)

	// make it public
	env.checkRoute(t, "PUT", record+"/visibility/public", "bobtoken", nil, 403)
	env.checkRoute(t, "PUT", record+"/visibility/sideways", "alicetoken", nil, 400)
	env.checkRoute(t, "PUT", record+"/visibility/public", "alicetoken", nil, 200)

	env.checkRoute(t, "GET", record, "", nil, 200)
	visible := env.checkRoute(t, "GET", "/api/publications/visible", "", nil, 200)
	if got := zipEntries(t, visible); len(got) != 1 || got[0] != id+".zip" {
		t.Errorf("Received %v, expected [%s.zip]", got, id)
	}
	user := env.checkRoute(t, "GET", "/api/publications/user/alice", "", nil, 200)
	if got := zipEntries(t, user); len(got) != 1 {
		t.Errorf("Received %v, expected one entry", got)
	}
	user = env.checkRoute(t, "GET", "/api/publications/user/bob", "", nil, 200)
	if got := zipEntries(t, user); len(got) != 0 {
		t.Errorf("Received %v, expected no entries", got)
	}
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	id := env.ingest(t, "alicetoken", makeSIP(t, "alice", ""), 201).Record.ID
	record := "/api/publications/record/" + id
	comment := []byte(`{"comment": "nice run"}`)

	env.checkRoute(t, "POST", record+"/comments", "", comment, 401)
	env.checkRoute(t, "POST", record+"/comments", "bobtoken", comment, 403)
	env.checkRoute(t, "POST", record+"/comments", "alicetoken", []byte(`{}`), 400)
	env.checkRoute(t, "POST", record+"/comments", "alicetoken", []byte(`nope`), 400)
	env.checkRoute(t, "POST", record+"/comments", "alicetoken", comment, 201)
	env.checkRoute(t, "PUT", record+"/visibility/public", "alicetoken", nil, 200)
	env.checkRoute(t, "POST", record+"/comments", "bobtoken", []byte(`{"comment": "agreed"}`), 201)

	var info struct {
		Comments []manifest.Comment `json:"comments"`
	}
	body := env.checkRoute(t, "GET", record+"/info", "", nil, 200)
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("Received %s, %s", body, err)
	}
	var got []string
	for _, c := range info.Comments {
		got = append(got, fmt.Sprintf("%s:%s", c.Username, c.Text))
	}
	expect := "alice:nice run,bob:agreed"
	if strings.Join(got, ",") != expect {
		t.Errorf("Received %v, expected %s", got, expect)
	}
}

func TestTokenSources(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	route := "/api/publications/self/alice"

	env.checkRoute(t, "GET", route+"?token=alicetoken", "", nil, 200)

	req, _ := http.NewRequest("GET", env.srv.URL+route, nil)
	req.Header.Set("X-Api-Key", "alicetoken")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("Received %d, expected 200", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	env.ingest(t, "alicetoken", makeSIP(t, "alice", ""), 201)
	body := env.checkRoute(t, "GET", "/metrics", "", nil, 200)
	for _, name := range []string{"archivum_ingest_total", "archivum_http_requests_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected metrics to contain %s", name)
		}
	}
}
