package api

import (
	"encoding/json"
	"net/http"

	"github.com/openfroyo/editengine/pkg/edit"
)

type errorResponse struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type savedResponse struct {
	Outcome string `json:"outcome"`
	URI     string `json:"uri,omitempty"`
	Created bool   `json:"created"`
	edit.RPCResponse
}

type invalidResponse struct {
	Outcome string            `json:"outcome"`
	Message string            `json:"message"`
	Errors  []edit.FieldError `json:"errors"`
}

type noEffectResponse struct {
	Outcome string `json:"outcome"`
	URI     string `json:"uri,omitempty"`
	Message string `json:"message"`
}

type rejectedResponse struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type documentationResponse struct {
	Outcome       string              `json:"outcome"`
	Engine        string              `json:"engine"`
	Configuration string              `json:"configuration"`
	Parameters    []edit.ParameterDoc `json:"parameters"`
	Types         []string            `json:"types"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Outcome: "error", Code: code, Message: message})
}

// rejectedStatus picks the status code for a rejection reason. Missing and
// invisible objects look the same.
func rejectedStatus(reason edit.ErrorClass) int {
	switch reason {
	case edit.ErrorClassNotFound, edit.ErrorClassTypeMismatch:
		return http.StatusNotFound
	case edit.ErrorClassPermission:
		return http.StatusForbidden
	case edit.ErrorClassValidation:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

// writeOutcome renders an engine outcome, or the error reserved for defects
// and infrastructure failures.
func (s *Server) writeOutcome(w http.ResponseWriter, out edit.Outcome, err error) {
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	switch o := out.(type) {
	case *edit.Saved:
		status := http.StatusOK
		if o.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, savedResponse{
			Outcome:     o.Name(),
			URI:         o.URI,
			Created:     o.Created,
			RPCResponse: o.RPCResponse(),
		})
	case *edit.Invalid:
		msg := "the submission contains invalid values"
		if o.Err != nil {
			msg = o.Err.Message
		}
		writeJSON(w, http.StatusUnprocessableEntity, invalidResponse{Outcome: o.Name(), Message: msg, Errors: o.Errors})
	case *edit.NoEffect:
		msg := "the submission would not change anything"
		if o.Err != nil {
			msg = o.Err.Message
		}
		writeJSON(w, http.StatusConflict, noEffectResponse{Outcome: o.Name(), URI: o.URI, Message: msg})
	case *edit.Rejected:
		writeJSON(w, rejectedStatus(o.Reason), rejectedResponse{
			Outcome: o.Name(),
			Reason:  string(o.Reason),
			Code:    o.Code,
			Message: o.Message,
		})
	case *edit.Documentation:
		writeJSON(w, http.StatusOK, documentationResponse{
			Outcome:       o.Name(),
			Engine:        o.EngineKey,
			Configuration: o.Configuration,
			Parameters:    o.Parameters,
			Types:         o.Types,
		})
	default:
		s.logger.Error().Str("outcome", out.Name()).Msg("Unhandled outcome")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// writeEngineError renders an error returned outside an outcome: classified
// errors from direct engine calls keep their class, anything else is
// internal.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	ee, ok := edit.AsError(err)
	if !ok {
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if ee.Class == edit.ErrorClassConfiguration {
		s.logger.Error().Err(err).Str("engine", ee.Engine).Msg("Configuration error")
		writeError(w, http.StatusInternalServerError, ee.Code, ee.Message)
		return
	}
	writeJSON(w, rejectedStatus(ee.Class), rejectedResponse{
		Outcome: "rejected",
		Reason:  string(ee.Class),
		Code:    ee.Code,
		Message: ee.Message,
	})
}
