package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Query parameters which control a submission rather than carry values.
const (
	queryAction   = "action"
	queryConfig   = "config"
	queryTemplate = "template"
	queryContinue = "continue"
)

var controlKeys = []string{queryAction, queryConfig, queryTemplate, queryContinue}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// baseRequest fills the fields shared by form and parameter submissions.
func baseRequest(r *http.Request) *edit.Request {
	q := r.URL.Query()
	return &edit.Request{
		EditAction:       edit.EditAction(q.Get(queryAction)),
		ObjectIdentifier: r.PathValue("object"),
		ConfigKey:        q.Get(queryConfig),
		Template:         q.Get(queryTemplate),
		Continue:         isTrue(q.Get(queryContinue)),
	}
}

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_json", "bad json")
		return false
	}
	return true
}

// parseForm parses the query string and form body, writing a 400, or a 413
// for an oversized body, on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_form", "bad form body")
		return false
	}
	return true
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	if !parseForm(w, r) {
		return
	}
	req := baseRequest(r)
	req.Form = r.PostForm
	if req.EditAction == edit.EditActionComment {
		req.CommentText = r.PostForm.Get(edit.CommentFieldKey)
	}

	out, err := s.engine.SubmitForm(r.Context(), viewer, r.PathValue("engine"), req)
	s.writeOutcome(w, out, err)
}

// handleParams reads field values from the query string and the form body
// together. Control keys are removed first.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	if !parseForm(w, r) {
		return
	}
	req := baseRequest(r)
	params := url.Values{}
	for key, values := range r.Form {
		params[key] = values
	}
	for _, key := range controlKeys {
		params.Del(key)
	}
	req.Params = params

	out, err := s.engine.SubmitParameters(r.Context(), viewer, r.PathValue("engine"), req)
	s.writeOutcome(w, out, err)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	out, err := s.engine.ParameterDocs(r.Context(), viewer, r.PathValue("engine"))
	s.writeOutcome(w, out, err)
}

type commentRequest struct {
	Comment  string               `json:"comment"`
	Actions  []edit.CommentAction `json:"actions"`
	Continue bool                 `json:"continue"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	var body commentRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req := &edit.Request{
		ObjectIdentifier: r.PathValue("object"),
		CommentText:      body.Comment,
		Actions:          body.Actions,
		Continue:         body.Continue,
	}
	out, err := s.engine.SubmitComment(r.Context(), viewer, r.PathValue("engine"), req)
	s.writeOutcome(w, out, err)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	var req edit.RPCRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.engine.SubmitRPC(r.Context(), viewer, r.PathValue("engine"), req)
	s.writeOutcome(w, out, err)
}

type transactionsResponse struct {
	Object       string              `json:"object"`
	Transactions []*edit.Transaction `json:"transactions"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	object := r.PathValue("object")
	txns, err := s.engine.ListTransactions(r.Context(), viewer, r.PathValue("engine"), object)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if txns == nil {
		txns = []*edit.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionsResponse{Object: object, Transactions: txns})
}

type configurationsResponse struct {
	Engine         string                `json:"engine"`
	Configurations []*edit.Configuration `json:"configurations"`
}

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request, _ edit.Viewer) {
	engineKey := r.PathValue("engine")
	configs, err := s.engine.Configurations(r.Context(), engineKey)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configurationsResponse{Engine: engineKey, Configurations: configs})
}

func (s *Server) handleSaveConfiguration(w http.ResponseWriter, r *http.Request, viewer edit.Viewer) {
	var cfg edit.Configuration
	if !decodeJSON(w, r, &cfg) {
		return
	}
	cfg.EngineKey = r.PathValue("engine")
	if err := s.engine.SaveConfiguration(r.Context(), viewer, &cfg); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if s.tel != nil && s.tel.Events != nil {
		if err := s.tel.Events.PublishConfigurationChanged(cfg.EngineKey, cfg.Identifier(), viewer.PHID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish configuration event")
		}
	}
	writeJSON(w, http.StatusOK, &cfg)
}
