package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillgarden/pkg/cache"
	"github.com/jingkaihe/skillgarden/pkg/skills"
	"github.com/jingkaihe/skillgarden/pkg/version"
)

// Request bounds
const (
	MaxQueryLength = 200
	MaxLimit       = 50
	DefaultLimit   = 10

	maxBodyBytes = 64 << 10
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string      `json:"status"`
	Version    string      `json:"version"`
	CacheStats cache.Stats `json:"cache_stats"`
}

// SourcesResponse is returned by GET /sources
type SourcesResponse struct {
	Sources []skills.SourceInfo `json:"sources"`
}

// searchBody is the JSON body of POST /search. Pointers tell omitted
// fields from explicit zero values.
type searchBody struct {
	Query             string `json:"query"`
	Limit             *int   `json:"limit"`
	IncludeContent    *bool  `json:"include_content"`
	IncludeRaw        bool   `json:"include_raw"`
	IncludeReferences bool   `json:"include_references"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, map[string]any{
		"name":        "Skill Garden",
		"version":     version.Get().Version,
		"description": "Search and retrieve agent skills with full markdown content",
		"endpoints": map[string]string{
			"search_get":  "GET /search?q={query}&limit={limit}&include_content={bool}&include_raw={bool}&include_references={bool}",
			"search_post": "POST /search",
			"get_skill":   "GET /skills/{owner}/{repo}/{skill_id}",
			"sources":     "GET /sources",
			"health":      "GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    version.Get().Version,
		CacheStats: s.service.CacheStats(r.Context()),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, SourcesResponse{Sources: s.service.Sources()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Refresh(r.Context()); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadGateway, "refresh failed", err)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, SourcesResponse{Sources: s.service.Sources()})
}

// handleSearchGet handles GET /search
func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := skills.SearchRequest{
		Query: query.Get("q"),
		Limit: DefaultLimit,
	}
	var err error
	if v := query.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			s.writeErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be an integer, got %q", v), nil)
			return
		}
	}
	flags := []struct {
		name   string
		target *bool
		def    bool
	}{
		{"include_content", &req.IncludeContent, true},
		{"include_raw", &req.IncludeRaw, false},
		{"include_references", &req.IncludeReferences, false},
	}
	for _, f := range flags {
		if *f.target, err = boolParam(query, f.name, f.def); err != nil {
			s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	s.search(w, r, req)
}

// handleSearchPost handles POST /search
func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "invalid JSON body", nil)
		return
	}

	req := skills.SearchRequest{
		Query:             body.Query,
		Limit:             DefaultLimit,
		IncludeContent:    true,
		IncludeRaw:        body.IncludeRaw,
		IncludeReferences: body.IncludeReferences,
	}
	if body.Limit != nil {
		req.Limit = *body.Limit
	}
	if body.IncludeContent != nil {
		req.IncludeContent = *body.IncludeContent
	}

	s.search(w, r, req)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, req skills.SearchRequest) {
	if err := validateSearch(req); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp, err := s.service.Search(r.Context(), req)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusBadGateway, "search failed", err)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, resp)
}

// handleGetSkill handles GET /skills/{owner}/{repo}/{id}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source := vars["owner"] + "/" + vars["repo"]
	skillID := vars["id"]

	includeRaw, err := boolParam(r.URL.Query(), "include_raw", false)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	includeReferences, err := boolParam(r.URL.Query(), "include_references", false)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	skill, ok := s.service.GetSkill(r.Context(), source, skillID, includeRaw, includeReferences)
	if !ok {
		s.writeErrorResponse(w, r, http.StatusNotFound, fmt.Sprintf("Skill not found: %s/%s", source, skillID), nil)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, skill)
}

func validateSearch(req skills.SearchRequest) error {
	n := utf8.RuneCountInString(strings.TrimSpace(req.Query))
	if n == 0 {
		return errors.New("query must not be empty")
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return errors.Errorf("query must be at most %d characters", MaxQueryLength)
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return errors.Errorf("limit must be between 1 and %d, got %d", MaxLimit, req.Limit)
	}
	return nil
}

func boolParam(values url.Values, name string, def bool) (bool, error) {
	v := values.Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Errorf("%s must be a boolean, got %q", name, v)
	}
	return b, nil
}
