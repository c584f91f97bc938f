package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/valpere/doktran/internal/auth"
)

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, v)
	}
	return n, nil
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	records, err := s.store.ListRecords(r.Context(), limit, offset, auth.UserFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, map[string]any{"records": records, "limit": limit, "offset": offset}, http.StatusOK)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecord(r.Context(), chi.URLParam(r, "id"), auth.UserFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, rec, http.StatusOK)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRecord(r.Context(), chi.URLParam(r, "id"), auth.UserFrom(r.Context()).ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGlossary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.store.ListGlossaryTerms(r.Context(), q.Get("source_lang"), q.Get("target_lang"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, map[string]any{"terms": entries}, http.StatusOK)
}

type glossaryRequest struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	SourceTerm string `json:"source_term"`
	TargetTerm string `json:"target_term"`
}

func (s *Server) handleAddGlossary(w http.ResponseWriter, r *http.Request) {
	var req glossaryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := s.store.AddGlossaryTerm(r.Context(), req.SourceLang, req.TargetLang, req.SourceTerm, req.TargetTerm)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"term":        entry.SourceTerm,
		"source_lang": entry.SourceLang,
		"target_lang": entry.TargetLang,
	}).Info("Glossary term saved")
	jsonResponse(w, entry, http.StatusCreated)
}

func (s *Server) handleDeleteGlossary(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteGlossaryTerm(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
