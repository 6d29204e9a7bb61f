package preview

import (
	"bufio"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// heartbeat keeps idle SSE connections open through proxies.
const heartbeat = 30 * time.Second

// Hub fans build hashes out to connected browsers over server-sent events.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	closed   bool
	lastHash string
}

type lrClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[int]*lrClient{}}
}

// Clients is the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint. A new client first receives the
// current hash (if any) so it can tell later changes apart.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastHash
	h.mu.Unlock()
	defer h.removeClient(client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			slog.Debug("livereload write", "error", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first := ": connected\n\n"
	if current != "" {
		first += event(current)
	}
	if !send(first) {
		return
	}

	hb := time.NewTicker(heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case hash := <-client.ch:
			if !send(event(hash)) {
				return
			}
		}
	}
}

func event(hash string) string {
	return `data: {"hash":"` + hash + "\"}\n\n"
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast sends hash to every client. Repeating the last hash is a no-op;
// clients too slow to take the message are dropped.
func (h *Hub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	slog.Debug("livereload broadcast", "hash", hash, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown disconnects all clients and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// Script reconnects to /livereload and reloads the page when the hash
// changes from the one seen at connect time.
const Script = `(() => {
  if (window.__PAGETREE_LR__) return;
  window.__PAGETREE_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`

const scriptTag = `<script async src="/livereload.js"></script>`

// injectScript adds the livereload script tag to HTML pages.
func injectScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !(p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html")) {
			next.ServeHTTP(w, r)
			return
		}
		inj := &injector{ResponseWriter: w, status: http.StatusOK, maxSize: 512 * 1024}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

// injector buffers an HTML response up to maxSize so the script can be
// inserted before </body>; larger or non-HTML responses pass through.
type injector struct {
	http.ResponseWriter
	status      int
	buffer      []byte
	wroteHeader bool
	passthrough bool
	maxSize     int
}

func (l *injector) WriteHeader(code int) {
	l.status = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.wroteHeader = true
	}
}

func (l *injector) Write(data []byte) (int, error) {
	if !l.passthrough && l.buffer == nil {
		ct := l.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			l.startPassthrough()
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}
	if len(l.buffer)+len(data) > l.maxSize {
		l.startPassthrough()
		if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
			return 0, err
		}
		return l.ResponseWriter.Write(data)
	}
	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *injector) startPassthrough() {
	l.passthrough = true
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.status)
	l.wroteHeader = true
}

func (l *injector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.wroteHeader {
			l.ResponseWriter.WriteHeader(l.status)
		}
		return
	}
	body := strings.Replace(string(l.buffer), "</body>", scriptTag+"</body>", 1)
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.status)
	_, _ = l.ResponseWriter.Write([]byte(body))
}
