package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/models"
)

// queryRequest is the optional body of the similar, author and series routes.
type queryRequest struct {
	Filter *models.QueryFilter `json:"filter,omitempty"`
	K      int                 `json:"k,omitempty"`
}

type recordsRequest struct {
	Records []*models.RecordInput `json:"records"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type cacheRequest struct {
	Capacity int `json:"capacity"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var query models.RecommendQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("recommend request", zap.String("query", query.Query), zap.Int("k", query.K))
	resp, err := s.recommender.GetRecommendations(r.Context(), query.Query, query.Filter, query.K)
	if err != nil {
		s.fail(w, "recommend", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	var query models.RecommendQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search books request", zap.String("query", query.Query))
	books, err := s.recommender.SearchBooks(r.Context(), query.Query, query.Filter)
	if err != nil {
		s.fail(w, "search books", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": books, "total": len(books)})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("similar request", zap.String("id", id), zap.Int("k", req.K))
	resp, err := s.recommender.GetSimilarBooks(r.Context(), id, req.Filter, req.K)
	if err != nil {
		s.fail(w, "similar", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthor(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	author := chi.URLParam(r, "author")
	s.logger.Debug("author request", zap.String("author", author), zap.Int("k", req.K))
	resp, err := s.recommender.GetAuthorRecommendations(r.Context(), author, req.Filter, req.K)
	if err != nil {
		s.fail(w, "author", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	series := chi.URLParam(r, "series")
	s.logger.Debug("series request", zap.String("series", series), zap.Int("k", req.K))
	resp, err := s.recommender.GetSeriesRecommendations(r.Context(), series, req.Filter, req.K)
	if err != nil {
		s.fail(w, "series", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFindByTitle(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit")
	if !ok {
		return
	}
	resp, err := s.recommender.FindByTitle(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, "find by title", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddRecords(w http.ResponseWriter, r *http.Request) {
	var req recordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		s.respondError(w, http.StatusBadRequest, "records are required")
		return
	}
	s.logger.Debug("add records request", zap.Int("count", len(req.Records)))
	ids, err := s.recommender.AddRecords(r.Context(), req.Records)
	if err != nil {
		s.fail(w, "add records", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"ids": ids, "status": "indexed"})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recommender.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get record", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var input models.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.ID = chi.URLParam(r, "id")
	s.logger.Debug("update record request", zap.String("id", input.ID))
	rec, err := s.recommender.UpdateRecord(r.Context(), &input)
	if err != nil {
		s.fail(w, "update record", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("remove record request", zap.String("id", id))
	if err := s.recommender.RemoveRecord(r.Context(), id); err != nil {
		s.fail(w, "remove record", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSaveIndex(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePath(w, r)
	if !ok {
		return
	}
	path, err := s.recommender.SnapshotNamed(req.Path)
	if err != nil {
		s.fail(w, "save index", err)
		return
	}
	if err := s.recommender.SaveIndex(r.Context(), path); err != nil {
		s.fail(w, "save index", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleLoadIndex(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePath(w, r)
	if !ok {
		return
	}
	path, err := s.recommender.SnapshotNamed(req.Path)
	if err != nil {
		s.fail(w, "load index", err)
		return
	}
	if err := s.recommender.LoadIndex(r.Context(), path); err != nil {
		s.fail(w, "load index", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.recommender.RebuildIndex(r.Context()); err != nil {
		s.fail(w, "rebuild index", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *Server) handlePopularGenres(w http.ResponseWriter, r *http.Request) {
	k, ok := s.intParam(w, r, "k")
	if !ok {
		return
	}
	genres, err := s.recommender.PopularGenres(r.Context(), k)
	if err != nil {
		s.fail(w, "popular genres", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"genres": genres})
}

func (s *Server) handlePopularAuthors(w http.ResponseWriter, r *http.Request) {
	k, ok := s.intParam(w, r, "k")
	if !ok {
		return
	}
	authors, err := s.recommender.PopularAuthors(r.Context(), k)
	if err != nil {
		s.fail(w, "popular authors", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"authors": authors})
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit")
	if !ok {
		return
	}
	books, err := s.recommender.TopRated(r.Context(), limit)
	if err != nil {
		s.fail(w, "top rated", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": books, "total": len(books)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.recommender.Status(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.inbox.Directories()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeQuery reads an optional queryRequest body; an empty body is allowed.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (s *Server) handleResizeCache(w http.ResponseWriter, r *http.Request) {
	var req cacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.recommender.ResizeCache(req.Capacity); err != nil {
		s.fail(w, "resize cache", err)
		return
	}
	idx := s.recommender.Index()
	s.respondJSON(w, http.StatusOK, map[string]int{
		"capacity": idx.CacheCapacity(),
		"entries":  idx.CacheLen(),
	})
}

// decodePath reads an optional pathRequest body. The path is a snapshot name
// inside the index directory; empty means the configured index path.
func (s *Server) decodePath(w http.ResponseWriter, r *http.Request) (pathRequest, bool) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

// intParam parses an optional integer query parameter; absent means 0.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrDimensionMismatch),
		errors.Is(err, models.ErrMissingEmbedding):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIndexCorrupt):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
