package devserver

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/teadocs/internal/logfields"
)

// ReloadEvent is sent to live-reload clients after a rebuild pass. Clients
// reload when their route is listed or All is set.
type ReloadEvent struct {
	ID     string   `json:"id"`
	Routes []string `json:"routes"`
	All    bool     `json:"all"`
	Status string   `json:"status"`
}

// Reload statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

func (e ReloadEvent) merge(o ReloadEvent) ReloadEvent {
	out := ReloadEvent{ID: o.ID, All: e.All || o.All, Status: o.Status}
	if e.Status == StatusError {
		out.Status = StatusError
	}
	out.Routes = append(slices.Clone(e.Routes), o.Routes...)
	slices.Sort(out.Routes)
	out.Routes = slices.Compact(out.Routes)
	return out
}

// Hub manages server-sent event clients. Broadcasts are rate limited;
// events arriving faster than the limit are merged into one.
type Hub struct {
	log     *slog.Logger
	limiter *rate.Limiter
	// onClients is called with the client count after every change.
	onClients func(n int)

	mu      sync.Mutex
	nextID  int
	clients map[int]*client
	closed  bool
	pending *ReloadEvent
	flush   *time.Timer

	sent atomic.Int64
}

type client struct {
	ch   chan ReloadEvent
	done chan struct{}
}

// NewHub returns a Hub allowing one broadcast per interval.
func NewHub(interval time.Duration, log *slog.Logger, onClients func(int)) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if onClients == nil {
		onClients = func(int) {}
	}
	return &Hub{
		log:       log,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		onClients: onClients,
		clients:   map[int]*client{},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Sent returns the number of broadcasts delivered so far.
func (h *Hub) Sent() int64 { return h.sent.Load() }

// ServeHTTP streams reload events to one client until it disconnects or the
// hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	c := &client{ch: make(chan ReloadEvent, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}
	id := h.nextID
	h.nextID++
	h.clients[id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.onClients(n)
	defer h.remove(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			h.log.Debug("Live reload write failed", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(": connected\n\n") {
		return
	}

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case ev := <-c.ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if !send("id: " + ev.ID + "\ndata: " + string(data) + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.onClients(n)
	}
}

// Broadcast sends ev to every client, or merges it into the next allowed
// broadcast when the rate limit is exhausted.
func (h *Hub) Broadcast(ev ReloadEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.pending != nil {
		merged := h.pending.merge(ev)
		h.pending = &merged
		return
	}
	res := h.limiter.Reserve()
	delay := res.Delay()
	if delay == 0 {
		h.deliver(ev)
		return
	}
	h.pending = &ev
	h.flush = time.AfterFunc(delay, h.flushPending)
}

func (h *Hub) flushPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.pending == nil {
		return
	}
	ev := *h.pending
	h.pending = nil
	h.deliver(ev)
}

// deliver runs with h.mu held. Clients whose buffer is full are dropped.
func (h *Hub) deliver(ev ReloadEvent) {
	dropped := 0
	for id, c := range h.clients {
		select {
		case c.ch <- ev:
		default:
			delete(h.clients, id)
			close(c.done)
			dropped++
		}
	}
	h.sent.Add(1)
	h.log.Debug("Live reload broadcast", slog.String("event", ev.ID),
		logfields.Clients(len(h.clients)), slog.Int("dropped", dropped), slog.Bool("all", ev.All))
	if dropped > 0 {
		go h.onClients(len(h.clients))
	}
}

// Shutdown disconnects every client and stops future broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	if h.flush != nil {
		h.flush.Stop()
	}
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.done)
	}
	h.mu.Unlock()
	h.onClients(0)
}

// clientScript connects a page to the event stream and reloads it when the
// page or the whole site changed.
const clientScript = `(() => {
  if (window.__teadocsLR) return;
  window.__teadocsLR = true;
  const me = document.currentScript ? document.currentScript.dataset.route : null;
  function connect() {
    const es = new EventSource('/__teadocs/livereload');
    es.onmessage = (e) => {
      let ev;
      try { ev = JSON.parse(e.data); } catch (_) { return; }
      if (ev.status === 'error') console.warn('[teadocs] rebuild reported errors');
      if (ev.all || (ev.routes || []).includes(me)) location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
