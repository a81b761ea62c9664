// Package audit records who did what. Events are sent after an operation
// has succeeded. A failure to record an event is logged and otherwise
// ignored, so it never undoes or fails the operation.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Actions
const (
	Ingest     = "ingest"
	Retrieve   = "retrieve"
	Comment    = "comment"
	Visibility = "visibility"
)

// Event is one audit entry.
type Event struct {
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"` // record id, if any
}

// A Logger receives audit events.
type Logger interface {
	Log(ctx context.Context, e Event) error
}

// Record sends e to l, logging any failure.
func Record(ctx context.Context, l Logger, e Event) {
	if l == nil {
		return
	}
	if err := l.Log(ctx, e); err != nil {
		log.WithFields(log.Fields{"user": e.User, "action": e.Action}).Errorln("audit:", err)
	}
}

// Logrus writes events to the process log.
type Logrus struct{}

func (Logrus) Log(ctx context.Context, e Event) error {
	log.WithFields(log.Fields{
		"user":   e.User,
		"action": e.Action,
		"target": e.Target,
		"when":   e.Timestamp.Format(time.RFC3339),
	}).Infoln("audit")
	return nil
}

// HTTP posts each event as JSON to a log service.
type HTTP struct {
	URL    string
	Client *http.Client // nil uses a client with a 10 second timeout
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

func (h *HTTP) Log(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	client := h.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "audit")
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("audit: received status %d", resp.StatusCode)
	}
	return nil
}

// Multi sends every event to each of its loggers in turn.
type Multi []Logger

func (m Multi) Log(ctx context.Context, e Event) error {
	var msgs []string
	for _, l := range m {
		if err := l.Log(ctx, e); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
