package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createBotRequest struct {
	Name                  string `json:"name"`
	AccountID             string `json:"accountId"`
	WhatsappAccountID     string `json:"whatsappAccountId"`
	SessionTTL            int    `json:"sessionTTL"`
	SessionTimeoutMessage string `json:"sessionTimeoutMessage"`
}

type flowRequest struct {
	Name   string           `json:"name"`
	Intent string           `json:"intent"`
	Steps  []map[string]any `json:"steps"`
}

func (s *Server) createBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.WhatsappAccountID == "" {
		http.Error(w, "name and whatsappAccountId are required", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	bot := &domain.Bot{
		ID:                    uuid.NewString(),
		AccountID:             req.AccountID,
		Name:                  req.Name,
		WhatsappAccountID:     req.WhatsappAccountID,
		SessionTTL:            req.SessionTTL,
		SessionTimeoutMessage: req.SessionTimeoutMessage,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.bots.SaveBot(r.Context(), bot); err != nil {
		s.logger.Error("bot creation failed", "err", err)
		http.Error(w, "could not save bot", http.StatusInternalServerError)
		return
	}
	s.logger.Info("bot created", "bot", bot.ID, "name", bot.Name)
	s.respondJSON(w, http.StatusOK, bot)
}

func (s *Server) publishBot(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	bot, err := s.bots.Bot(r.Context(), botID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	bot.IsPublished = true
	bot.UpdatedAt = time.Now().UTC()
	if err := s.bots.SaveBot(r.Context(), bot); err != nil {
		s.logger.Error("bot publish failed", "bot", botID, "err", err)
		http.Error(w, "could not publish bot", http.StatusInternalServerError)
		return
	}
	s.logger.Info("bot published", "bot", botID)
	s.respondJSON(w, http.StatusOK, bot)
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	refs, err := s.flows.FlowsByBot(r.Context(), botID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, refs)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	flow, err := s.flows.Flow(r.Context(), flowID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, flow)
}

func (s *Server) createFlow(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := s.bots.Bot(r.Context(), botID); err != nil {
		s.respondStoreError(w, err)
		return
	}
	now := time.Now().UTC()
	flow := &domain.Flow{
		ID:        uuid.NewString(),
		BotID:     botID,
		Name:      req.Name,
		Intent:    req.Intent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !s.fillSteps(w, flow, req.Steps) {
		return
	}
	if err := s.flows.SaveFlow(r.Context(), flow); err != nil {
		s.logger.Error("flow creation failed", "bot", botID, "err", err)
		http.Error(w, "could not save flow", http.StatusInternalServerError)
		return
	}
	s.logger.Info("flow created", "flow", flow.ID, "bot", botID, "intent", flow.Intent)
	s.respondJSON(w, http.StatusOK, flow)
}

func (s *Server) updateFlow(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	flow, err := s.flows.Flow(r.Context(), flowID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if req.Name != "" {
		flow.Name = req.Name
	}
	if req.Intent != "" {
		flow.Intent = req.Intent
	}
	if req.Steps != nil {
		if !s.fillSteps(w, flow, req.Steps) {
			return
		}
	}
	flow.UpdatedAt = time.Now().UTC()
	if err := s.flows.SaveFlow(r.Context(), flow); err != nil {
		s.logger.Error("flow update failed", "flow", flowID, "err", err)
		http.Error(w, "could not save flow", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, flow)
}

// fillSteps decodes and validates a step-graph payload into the flow.
// It writes the error response itself and reports whether to continue.
func (s *Server) fillSteps(w http.ResponseWriter, flow *domain.Flow, raw []map[string]any) bool {
	steps, err := domain.DecodeSteps(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	flow.Steps = steps
	if _, err := flow.Compile(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBotNotFound):
		http.Error(w, "bot not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrFlowNotFound):
		http.Error(w, "flow not found", http.StatusNotFound)
	default:
		s.logger.Error("store error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
