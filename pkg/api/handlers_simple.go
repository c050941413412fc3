package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/odvcencio/chatproxy/pkg/provider"
	"github.com/odvcencio/chatproxy/pkg/proxy"
	"github.com/odvcencio/chatproxy/pkg/session"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

type chatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	// Timeout in seconds; zero means the provider's configured job timeout.
	Timeout int `json:"timeout,omitempty"`
}

type healthResponse struct {
	Status  string           `json:"status"`
	Browser []session.Status `json:"browser"`
}

type restartRequest struct {
	Model string `json:"model,omitempty"`
}

type restartResponse struct {
	Message string `json:"message"`
}

type rootResponse struct {
	Service   string   `json:"service"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, rootResponse{
		Service: serviceName,
		Endpoints: []string{
			"POST /chat",
			"POST /chat/completions",
			"POST /v1/chat/completions",
			"GET /models",
			"GET /health",
			"POST /restart",
			"GET /metrics",
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondSimpleError(w, req.Model, proxy.NewProxyError(proxy.CodeInvalidRequest, "malformed JSON body"))
		return
	}
	if req.Message == "" {
		s.respondSimpleError(w, req.Model, proxy.NewProxyError(proxy.CodeInvalidRequest, "message is required"))
		return
	}
	if req.Model == "" {
		s.respondSimpleError(w, req.Model, proxy.NewProxyError(proxy.CodeInvalidRequest, "model is required"))
		return
	}

	ctx := r.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
		defer cancel()
	}

	res, err := s.orch.AskModel(ctx, req.Model, []translate.Message{
		{Role: translate.RoleUser, Content: req.Message},
	})
	if err != nil {
		s.respondSimpleError(w, req.Model, err)
		return
	}
	respondJSON(w, http.StatusOK, translate.SimpleResponse{
		Response: res.Reply,
		Model:    req.Model,
		Success:  true,
	})
}

func (s *Server) respondSimpleError(w http.ResponseWriter, model string, err error) {
	pe := proxy.Classify(err)
	respondJSON(w, statusFor(pe.Code), translate.SimpleResponse{
		Model:   model,
		Success: false,
		Error:   pe.Message,
	})
}

type supportedModelsResponse struct {
	SupportedModels []string `json:"supported_models"`
}

func (s *Server) handleSupportedModels(w http.ResponseWriter, _ *http.Request) {
	models := s.orch.Models()
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	respondJSON(w, http.StatusOK, supportedModelsResponse{SupportedModels: ids})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Browser: s.orch.Health(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondOpenAIError(w, proxy.NewProxyError(proxy.CodeInvalidRequest, "malformed JSON body"))
			return
		}
	}

	var targets []provider.Provider
	if req.Model != "" {
		p, err := provider.Parse(req.Model)
		if err != nil {
			respondOpenAIError(w, err)
			return
		}
		targets = []provider.Provider{p}
	} else {
		for _, m := range s.orch.Models() {
			targets = append(targets, provider.Provider(m.ID))
		}
	}

	for _, p := range targets {
		if err := s.orch.Restart(r.Context(), p); err != nil {
			respondOpenAIError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, restartResponse{Message: "browser session restarted"})
}
