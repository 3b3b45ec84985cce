package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/InterviewPipe/internal/messaging"
	"github.com/BTreeMap/InterviewPipe/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime encoding failures
var (
	fallbackErrorResponse []byte
	fallbackTwiML         = []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeTwiML answers a webhook with status 200 and body as a TwiML message.
// An empty body sends a bare acknowledgement.
func writeTwiML(w http.ResponseWriter, body string) {
	data := fallbackTwiML
	if out, err := messaging.RenderReply(body); err != nil {
		slog.Error("Server.writeTwiML: failed to render TwiML", "error", err)
	} else {
		data = []byte(out)
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.writeTwiML: failed to write TwiML", "error", err)
	}
}
