package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/odvcencio/chatproxy/pkg/proxy"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// modelInfo is the OpenAI model object plus the chat page URL.
type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	URL     string `json:"url,omitempty"`
}

type v1HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := s.orch.Models()
	list := modelList{Object: "list", Data: make([]modelInfo, 0, len(models))}
	created := time.Now().Unix()
	for _, m := range models {
		list.Data = append(list.Data, modelInfo{
			ID:      m.ID,
			Object:  "model",
			Created: created,
			OwnedBy: serviceName,
			URL:     m.URL,
		})
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleV1Root(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": serviceName,
		"api":     "v1",
	})
}

func (s *Server) handleV1Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, v1HealthResponse{Status: "ok", Service: serviceName})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req translate.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondOpenAIError(w, proxy.NewProxyError(proxy.CodeInvalidRequest, "malformed JSON body"))
		return
	}
	if req.Model == "" {
		respondOpenAIError(w, proxy.NewProxyError(proxy.CodeInvalidRequest, "model is required"))
		return
	}
	if len(req.Messages) == 0 {
		respondOpenAIError(w, proxy.NewProxyError(proxy.CodeInvalidRequest, "messages must not be empty"))
		return
	}

	res, err := s.orch.AskModel(r.Context(), req.Model, req.Messages)
	if err != nil {
		respondOpenAIError(w, err)
		return
	}

	if req.Stream || s.opts.ForceStream {
		s.streamCompletion(w, req.Model, res.Reply)
		return
	}

	respondJSON(w, http.StatusOK, translate.NewCompletion(req.Model, res.Prompt, res.Reply))
}
