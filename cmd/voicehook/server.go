package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voicehook/internal/middleware"
	"voicehook/internal/models"
	"voicehook/internal/respond"
	"voicehook/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxWebhookBodyBytes bounds how much of a webhook body is read.
const maxWebhookBodyBytes = 1 << 20

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	controller *service.Controller
	cfg        *models.Config
	server     *http.Server
}

func NewServer(cfg *models.Config, controller *service.Controller, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		controller: controller,
		cfg:        cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	// Cloud messaging webhook: GET is the subscription handshake, POST the
	// event delivery.
	s.router.HandleFunc("/webhook", s.handleVerification()).Methods(http.MethodGet)
	s.router.HandleFunc("/webhook", s.handleCloudWebhook()).Methods(http.MethodPost)

	// Telephony webhook: GET is a status-callback probe, POST the message.
	s.router.HandleFunc("/twilio", s.handleTelephonyProbe()).Methods(http.MethodGet)
	s.router.HandleFunc("/twilio", s.handleTelephonyWebhook()).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/test", s.handleTest()).Methods(http.MethodGet, http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		challenge, err := s.controller.VerifyWebhook(
			query.Get("hub.mode"),
			query.Get("hub.verify_token"),
			query.Get("hub.challenge"),
		)
		if err != nil {
			s.logger.WithError(err).Warn("Webhook verification rejected")
			w.WriteHeader(http.StatusForbidden)
			return
		}

		s.logger.Info("Webhook verification succeeded")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
	}
}

func (s *Server) handleCloudWebhook() http.HandlerFunc {
	return s.handleInbound(models.ProviderCloud)
}

func (s *Server) handleTelephonyWebhook() http.HandlerFunc {
	return s.handleInbound(models.ProviderTelephony)
}

func (s *Server) handleInbound(provider models.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read webhook body")
			writeEnvelope(w, respond.Compose(respond.Outcome{Kind: respond.OutcomeUnrecognizedPayload}, provider, models.WireFormatXML))
			return
		}

		envelope := s.controller.HandleInbound(r.Context(), body, r.Header.Get("Content-Type"), provider)
		writeEnvelope(w, envelope)
	}
}

func (s *Server) handleTelephonyProbe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("Telephony status probe received")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleTest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		w.WriteHeader(http.StatusOK)
		if len(body) > 0 {
			w.Write(body)
			return
		}
		w.Write([]byte("OK"))
	}
}

func writeEnvelope(w http.ResponseWriter, envelope respond.Envelope) {
	if envelope.ContentType != "" {
		w.Header().Set("Content-Type", envelope.ContentType)
	}
	w.WriteHeader(envelope.StatusCode)
	if envelope.Body != "" {
		w.Write([]byte(envelope.Body))
	}
}
