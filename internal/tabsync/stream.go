package tabsync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"timetracker/internal/logging"
	"timetracker/internal/models"
)

// Sink receives change notifications, no matter which transport carried them.
type Sink interface {
	OnSyncEvent(ev models.SyncEvent)
}

type StreamConfig struct {
	BaseURL   string
	Token     string
	SessionID string
	// Retry wait between reconnect attempts.
	RetryDelay time.Duration
}

// Stream consumes the server's push endpoint: it parses the line-oriented
// frames, skips comment heartbeats, watches the id sequence for reordering
// on its own connection and hands sync events to the sink tagged as
// server-pushed.
type Stream struct {
	httpClient *http.Client
	cfg        StreamConfig
	sink       Sink
	log        *logging.Logger

	// mu guards clientID and lastSeq; Run writes them while callers may
	// read ClientID concurrently.
	mu       sync.Mutex
	clientID string
	lastSeq  int64
}

func NewStream(httpClient *http.Client, cfg StreamConfig, sink Sink, log *logging.Logger) *Stream {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	return &Stream{httpClient: httpClient, cfg: cfg, sink: sink, log: log}
}

// ClientID is the connection id announced by the server's connected event;
// empty until the first connection is established.
func (s *Stream) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Run connects and reconnects until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.connectOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warnf("sync stream: %v, reconnecting", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
}

func (s *Stream) connectOnce(ctx context.Context) error {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/api/v1/sync"
	q := url.Values{}
	if s.cfg.Token != "" {
		q.Set("token", s.cfg.Token)
	} else if s.cfg.SessionID != "" {
		q.Set("sessionId", s.cfg.SessionID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync stream status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4*1024), 256*1024)
	s.readFrames(scanner)
	return scanner.Err()
}

// readFrames accumulates id/event/data lines until the blank terminator,
// then dispatches. Comment lines (leading ':') are heartbeats, not frames.
func (s *Stream) readFrames(scanner *bufio.Scanner) {
	var id, event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || data != "" {
				s.dispatch(id, event, data)
			}
			id, event, data = "", "", ""
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func (s *Stream) dispatch(id, event, data string) {
	var seq int64
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		seq = v
		s.mu.Lock()
		if seq <= s.lastSeq {
			s.log.Warnf("sync stream: sequence went backwards (%d after %d)", seq, s.lastSeq)
		}
		s.lastSeq = seq
		s.mu.Unlock()
	}
	switch event {
	case "connected":
		var body struct {
			ClientID string `json:"clientId"`
		}
		if err := json.Unmarshal([]byte(data), &body); err == nil {
			s.mu.Lock()
			s.clientID = body.ClientID
			s.mu.Unlock()
		}
	case "sync":
		var ev models.SyncEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.log.Debugf("sync stream: bad event payload: %v", err)
			return
		}
		ev.Source = models.SourcePush
		ev.Sequence = seq
		if s.sink != nil {
			s.sink.OnSyncEvent(ev)
		}
	}
}
