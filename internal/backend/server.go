package backend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/osk/fintrack/internal/domain"
)

// Server is a reference implementation of the backend side of the sync
// protocol. It keeps everything in memory, which makes it useful as a local
// development target and as the counterpart in end-to-end tests, not as a
// durable service.
type Server struct {
	store    *Store
	hub      *Hub
	logger   *slog.Logger
	token    string
	upgrader websocket.Upgrader
}

// Config wires a Server.
type Config struct {
	Logger *slog.Logger
	// Token, when set, is required as a bearer token on every request.
	Token string
	// Clock overrides the server timestamp source. Nil means time.Now.
	Clock func() time.Time
}

// NewServer creates a new Server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		store:  NewStore(cfg.Clock),
		hub:    NewHub(cfg.Logger),
		logger: cfg.Logger,
		token:  cfg.Token,
	}
}

// Store exposes the entity store for test setup.
func (s *Server) Store() *Store {
	return s.store
}

// Router returns the HTTP surface of the sync protocol.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.authenticate)

	r.Post("/sync/push", s.handlePush)
	r.Get("/sync/pull/{entityType}", s.handlePull)
	r.Get("/sync/stream", s.handleStream)

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type pushRequest struct {
	Items []domain.PushItem `json:"items"`
}

type pushResponse struct {
	Results []domain.PushResult `json:"results"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		http.Error(w, "tenantId is required", http.StatusBadRequest)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results := make([]domain.PushResult, 0, len(req.Items))
	for _, item := range req.Items {
		result := s.store.Apply(tenantID, item)
		results = append(results, result)
		s.hub.Broadcast(tenantID, frameFor(item, result))
	}

	s.logger.Info("push batch processed",
		slog.String("tenant_id", tenantID),
		slog.Int("items", len(req.Items)),
	)

	writeJSON(w, pushResponse{Results: results})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		http.Error(w, "tenantId is required", http.StatusBadRequest)
		return
	}

	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	switch entityType {
	case domain.EntityTypeTransaction, domain.EntityTypeAccount, domain.EntityTypeCategory:
	default:
		http.Error(w, "unknown entity type", http.StatusBadRequest)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	writeJSON(w, s.store.ChangedSince(tenantID, entityType, since))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		http.Error(w, "tenantId is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := s.hub.add(tenantID, conn)
	s.logger.Info("stream subscriber connected", slog.String("tenant_id", tenantID))

	defer func() {
		s.hub.remove(tenantID, sub)
		conn.Close()
	}()

	// Subscribers never send application frames; the read loop only exists
	// to notice when the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func frameFor(item domain.PushItem, result domain.PushResult) domain.SyncMessage {
	msg := domain.SyncMessage{
		ID:            item.ID,
		EntityID:      item.EntityID,
		EntityType:    item.EntityType,
		OperationType: item.OperationType,
	}
	if result.Processed() {
		msg.Type = domain.MessageTypeAck
		msg.NewUpdatedAt = result.NewUpdatedAt
	} else {
		msg.Type = domain.MessageTypeNack
		msg.Reason = result.Reason
		msg.Detail = result.Detail
	}
	return msg
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
