// Package screenapi serves the screen API over HTTP: a background consumer
// of the device bridge's server-sent frame stream keeps a latest-frame cell,
// and three endpoints expose it:
//
//	GET /screen-info        → latest frame (blocks up to 1 s for a fresh one)
//	GET /health             → 2xx when the bridge is reachable and a frame arrived
//	GET /streaming-status   → {"is_streaming_connected": bool}
package screenapi

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nvasilev/mobpilot/ui"
)

// freshWait bounds how long /screen-info waits for a frame newer than the
// request before falling back to the cached one.
const freshWait = time.Second

// Frame is one screen observation as served to clients.
type Frame struct {
	Base64   string       `json:"base64"`
	Elements []ui.Element `json:"elements"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Platform string       `json:"platform"`
}

// sseFrame is the wire shape of one bridge SSE message. The screenshot
// arrives as a path to fetch, not inline data.
type sseFrame struct {
	Screenshot string       `json:"screenshot"`
	Elements   []ui.Element `json:"elements"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Platform   string       `json:"platform"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHTTPClient sets the client used for the SSE stream and screenshot
// fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// Server consumes the bridge's frame stream and serves the screen API.
type Server struct {
	bridgeURL string
	client    *http.Client
	logger    *slog.Logger

	mu        sync.Mutex
	latest    *Frame
	updatedAt time.Time
	connected bool
	waiters   []chan struct{}
}

// New creates a Server consuming frames from the bridge at bridgeURL.
// Call Start to begin consuming before serving Handler.
func New(bridgeURL string, opts ...Option) *Server {
	s := &Server{
		bridgeURL: strings.TrimRight(bridgeURL, "/"),
		// No overall timeout: the SSE stream is long-lived.
		client: &http.Client{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the background SSE consumer. It reconnects with backoff
// until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go s.consumeLoop(ctx)
}

func (s *Server) consumeLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if err := s.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("screenapi: stream disconnected", "error", err, "retry_in", backoff)
		}
		s.setConnected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

// consumeOnce holds one SSE connection open, publishing each frame to the
// cell, until the stream ends or ctx is cancelled.
func (s *Server) consumeOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.bridgeURL+"/device-screen/sse", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: status %d", resp.StatusCode)
	}

	s.setConnected(true)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var raw sseFrame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &raw); err != nil {
			s.logger.Debug("screenapi: bad frame payload", "error", err)
			continue
		}
		frame := Frame{
			Elements: raw.Elements,
			Width:    raw.Width,
			Height:   raw.Height,
			Platform: raw.Platform,
		}
		if raw.Screenshot != "" {
			b64, err := s.fetchScreenshot(ctx, raw.Screenshot)
			if err != nil {
				s.logger.Debug("screenapi: screenshot fetch failed", "path", raw.Screenshot, "error", err)
			}
			frame.Base64 = b64
		}
		s.publish(frame)
	}
	return scanner.Err()
}

// fetchScreenshot retrieves the screenshot at path from the bridge and
// returns it base64-encoded.
func (s *Server) fetchScreenshot(ctx context.Context, path string) (string, error) {
	url := path
	if strings.HasPrefix(path, "/") {
		url = s.bridgeURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("screenshot: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// publish stores the frame and wakes every blocked /screen-info request.
func (s *Server) publish(frame Frame) {
	s.mu.Lock()
	s.latest = &frame
	s.updatedAt = time.Now()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

func (s *Server) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// await returns the current frame state and, when it predates since, a
// channel closed on the next publish.
func (s *Server) await(since time.Time) (<-chan struct{}, *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest != nil && !s.updatedAt.Before(since) {
		return nil, s.latest
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	return ch, s.latest
}

// Handler returns the screen API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/screen-info", s.handleScreenInfo)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/streaming-status", s.handleStreamingStatus)
	return mux
}

// handleScreenInfo serves the latest frame. When the cached frame predates
// the request it waits up to freshWait for a newer one, then falls back to
// the cache; with no frame at all it answers 503.
func (s *Server) handleScreenInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ch, latest := s.await(start)
	if ch != nil {
		select {
		case <-ch:
		case <-time.After(freshWait):
		case <-r.Context().Done():
			return
		}
		s.mu.Lock()
		latest = s.latest
		s.mu.Unlock()
	}

	if latest == nil {
		http.Error(w, "no frame received from device stream", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, latest)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.connected && s.latest != nil
	s.mu.Unlock()
	if !ok {
		http.Error(w, "device stream not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStreamingStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	writeJSON(w, map[string]bool{"is_streaming_connected": connected})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
