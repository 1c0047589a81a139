package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/LugmanS/chatbot/internal/adapters/whatsapp"
	"github.com/LugmanS/chatbot/internal/metrics"
)

// verifyWebhook answers the channel's subscription handshake: echo the
// challenge only when the verification token matches.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")
	if token != s.verifyToken {
		s.logger.Warn("webhook verification rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// receiveEvent acknowledges the delivery immediately and processes the
// event as a detached task. Nothing that happens during flow execution
// is surfaced to the caller; the transport has already been answered.
func (s *Server) receiveEvent(w http.ResponseWriter, r *http.Request) {
	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Warn("undecodable webhook payload", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	ev, ok := whatsapp.ParseEvent(&payload)
	if !ok {
		// Status notification or other message-less delivery.
		metrics.EventsIgnored.Inc()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic during event processing", "panic", rec, "user", ev.UserPhoneNumber)
			}
		}()
		if err := s.events.HandleEvent(context.Background(), ev); err != nil {
			s.logger.Error("event processing failed", "user", ev.UserPhoneNumber, "err", err)
		}
	}()
}
