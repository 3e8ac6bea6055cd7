package testutils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/papercomputeco/capsule/pkg/llm"
)

// DoneFrame ends a scripted stream.
const DoneFrame = "data: [DONE]\n\n"

// ContentFrame returns one SSE data frame carrying fragment.
func ContentFrame(fragment string) string {
	raw, err := json.Marshal(llm.NewContentChunk("test-model", fragment))
	if err != nil {
		panic(err)
	}
	return "data: " + string(raw) + "\n\n"
}

// UpstreamConfig scripts a fake chat endpoint.
type UpstreamConfig struct {
	// Status is the response status, defaults to 200.
	Status int

	// Body is written as is for a non-success Status.
	Body string

	// Chunks are written and flushed one at a time.
	Chunks []string

	// Drop aborts the connection after the chunks were written so the client
	// sees a broken body instead of a clean end.
	Drop bool

	// Hang keeps the response open after the chunks until the client goes away.
	Hang bool
}

// Upstream is a fake streaming chat endpoint.
type Upstream struct {
	*httptest.Server

	config   UpstreamConfig
	mu       sync.Mutex
	requests []*llm.ChatRequest
	headers  []http.Header
}

// NewUpstream starts an Upstream. Close it when done.
func NewUpstream(c UpstreamConfig) *Upstream {
	u := &Upstream{config: c}
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	return u
}

// Requests returns every chat request received so far.
func (u *Upstream) Requests() []*llm.ChatRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*llm.ChatRequest(nil), u.requests...)
}

// Headers returns the headers of every request received so far.
func (u *Upstream) Headers() []http.Header {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]http.Header(nil), u.headers...)
}

func (u *Upstream) serve(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad request"}`)
		return
	}

	u.mu.Lock()
	u.requests = append(u.requests, &req)
	u.headers = append(u.headers, r.Header.Clone())
	u.mu.Unlock()

	if u.config.Status != 0 && u.config.Status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(u.config.Status)
		_, _ = io.WriteString(w, u.config.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, chunk := range u.config.Chunks {
		_, _ = io.WriteString(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if u.config.Drop {
		panic(http.ErrAbortHandler)
	}
	if u.config.Hang {
		<-r.Context().Done()
	}
}
