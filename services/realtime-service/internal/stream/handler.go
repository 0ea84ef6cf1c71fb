package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nabil-hossain/ridepulse/libs/auth"
	"github.com/nabil-hossain/ridepulse/services/realtime-service/internal/registry"
)

// Handler upgrades an authenticated request to a long-lived server-sent
// event stream registered for the caller's (role, id) identity.
type Handler struct {
	registry  *registry.Registry
	jwtSecret string
	heartbeat time.Duration
	logger    *slog.Logger
}

func NewHandler(reg *registry.Registry, jwtSecret string, heartbeat time.Duration, logger *slog.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{
		registry:  reg,
		jwtSecret: jwtSecret,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Identity is resolved before any registry mutation; a request that
	// cannot be mapped to a (role, id) pair never registers anything.
	id, err := h.identify(r)
	if err != nil {
		http.Error(w, "cannot resolve stream identity", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.registry.Subscribe(id)
	defer h.registry.Unsubscribe(sub)

	writeEvent(w, "connected", fmt.Appendf(nil,
		`{"connectionId":%q,"role":%q,"id":%q}`, sub.ID, id.Role, id.ID))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Registry dropped us (slow consumer); end the stream so
				// the client reconnects.
				return
			}
			writeEvent(w, ev.Name, ev.Data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) identify(r *http.Request) (auth.Identity, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	claims, err := auth.ParseAndVerifyHS256(token, h.jwtSecret)
	if err != nil {
		return auth.Identity{}, err
	}
	return claims.Identity()
}

func writeEvent(w http.ResponseWriter, name string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
