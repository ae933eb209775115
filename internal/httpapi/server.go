package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/models"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/storage"
)

// RatingPrompter is the slice of the ride state machine the callable
// endpoint needs.
type RatingPrompter interface {
	SendRatingPrompts(ctx context.Context, ride *models.Ride) error
}

// EventPublisher forwards document change events from the UI backend onto
// the trigger topic.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev events.ChangeEvent) error
}

// Server exposes the synchronous, caller-invoked entry points plus the
// change-event ingest bridge and the in-app delivery socket. Everything is
// injected; there are no process globals.
type Server struct {
	Store    storage.Store
	Prompts  RatingPrompter
	Mail     notify.MailSender
	Producer EventPublisher
	WSReg    *notify.Registry

	apiToken string
	logger   *slog.Logger
	mux      *mux.Router
}

func NewServer(store storage.Store, prompts RatingPrompter, mail notify.MailSender, producer EventPublisher, wsreg *notify.Registry, apiToken string, logger *slog.Logger) *Server {
	s := &Server{
		Store:    store,
		Prompts:  prompts,
		Mail:     mail,
		Producer: producer,
		WSReg:    wsreg,
		apiToken: apiToken,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rating-requests", s.requireAuth(s.handleRatingRequest)).Methods("POST")
	s.mux.HandleFunc("/api/v1/emails", s.requireAuth(s.handleSendEmail)).Methods("POST")
	s.mux.HandleFunc("/internal/events", s.requireAuth(s.handleIngestEvent)).Methods("POST")
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// requireAuth checks the service bearer token. Real end-user auth lives in
// the external identity layer; these endpoints only accept the trusted
// backend.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok == "" || tok != s.apiToken {
			writeError(w, CodeUnauthenticated, "missing or invalid credentials")
			return
		}
		next(w, r)
	}
}

type ratingRequest struct {
	RideID string `json:"ride_id"`
}

func (s *Server) handleRatingRequest(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RideID == "" {
		writeError(w, CodeInvalidArgument, "ride_id is required")
		return
	}
	ride, err := s.Store.GetRide(r.Context(), req.RideID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, CodeNotFound, "ride not found")
		return
	}
	if err != nil {
		s.logger.Error("ride lookup failed", "ride_id", req.RideID, "error", err)
		writeError(w, CodeInternal, "ride lookup failed")
		return
	}
	if ride.Status != models.RideCompleted {
		writeError(w, CodeFailedPrecondition, "ride is not completed")
		return
	}
	if err := s.Prompts.SendRatingPrompts(r.Context(), ride); err != nil {
		s.logger.Error("rating prompts failed", "ride_id", ride.ID, "error", err)
		writeError(w, CodeInternal, "failed to send rating prompts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "ride_id": ride.ID})
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidArgument, "invalid request body")
		return
	}
	if req.To == "" || req.Subject == "" || req.HTML == "" {
		writeError(w, CodeInvalidArgument, "to, subject and html are required")
		return
	}
	if err := s.Mail.Send(r.Context(), notify.Email{To: req.To, Subject: req.Subject, HTML: req.HTML}); err != nil {
		s.logger.Error("email send failed", "to", req.To, "error", err)
		writeError(w, CodeInternal, "email delivery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, CodeInvalidArgument, "invalid event body")
		return
	}
	if ev.Resource == "" || ev.Kind == "" || ev.DocumentID == "" {
		writeError(w, CodeInvalidArgument, "resource, kind and document_id are required")
		return
	}
	if s.Producer == nil {
		writeError(w, CodeInternal, "event transport not configured")
		return
	}
	if err := s.Producer.PublishChange(r.Context(), ev); err != nil {
		s.logger.Error("event publish failed", "resource", ev.Resource, "doc_id", ev.DocumentID, "error", err)
		writeError(w, CodeInternal, "event publish failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	s.WSReg.Add(id, conn)
	go func() {
		defer s.WSReg.Remove(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
