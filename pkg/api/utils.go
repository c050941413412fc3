package api

import (
	"encoding/json"
	"net/http"

	"github.com/odvcencio/chatproxy/pkg/proxy"
)

// wireError is the OpenAI-style error envelope.
type wireError struct {
	Error wireErrorBody `json:"error"`
}

type wireErrorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// statusFor maps wire error codes onto HTTP statuses.
func statusFor(code proxy.ErrorCode) int {
	switch code {
	case proxy.CodeInvalidRequest:
		return http.StatusBadRequest
	case proxy.CodeNotFound:
		return http.StatusNotFound
	case proxy.CodeOverloaded:
		return http.StatusTooManyRequests
	case proxy.CodeTimeout:
		return http.StatusGatewayTimeout
	case proxy.CodeSessionError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// typeFor maps wire error codes onto the envelope's error family. Client
// mistakes, including unknown models, report as invalid_request_error the
// way OpenAI's API does; the precise code rides in the code field.
func typeFor(code proxy.ErrorCode) string {
	switch code {
	case proxy.CodeInvalidRequest, proxy.CodeNotFound:
		return string(proxy.CodeInvalidRequest)
	default:
		return string(code)
	}
}

// respondOpenAIError writes the error envelope the OpenAI surface uses.
func respondOpenAIError(w http.ResponseWriter, err error) {
	pe := proxy.Classify(err)
	code := string(pe.Code)
	respondJSON(w, statusFor(pe.Code), wireError{
		Error: wireErrorBody{
			Message: pe.Message,
			Type:    typeFor(pe.Code),
			Code:    &code,
		},
	})
}
