package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/interlink/internal/linkservice"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *linkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *linkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathParam returns a decoded URL parameter. Keywords are often non-ASCII
// and arrive percent-encoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
	return false
}

// GetRegistry handles GET /api/registry.
//
//	@Summary		Get the keyword registry grouped by category
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	map[string]map[string]string
//	@Security		BearerAuth
//	@Router			/registry [get]
func (h *Handler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registry(r.Context())
	if err != nil {
		writeError(w, "get registry", err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// GetFlatRegistry handles GET /api/registry/flat.
//
//	@Summary		Get the registry as ordered keyword pairs
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	FlatRegistryResponse
//	@Security		BearerAuth
//	@Router			/registry/flat [get]
func (h *Handler) GetFlatRegistry(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.svc.FlatPairs(r.Context())
	if err != nil {
		writeError(w, "flatten registry", err)
		return
	}
	writeJSON(w, http.StatusOK, FlatRegistryResponse{Pairs: pairs})
}

// AddKeyword handles POST /api/registry/keywords.
//
//	@Summary		Add a keyword to a category
//	@Tags			registry
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddKeywordRequest	true	"Keyword to add"
//	@Success		201		{object}	KeywordEntry
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registry/keywords [post]
func (h *Handler) AddKeyword(w http.ResponseWriter, r *http.Request) {
	var req AddKeywordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.AddKeyword(r.Context(), req.Category, req.Keyword, req.URL)
	if err != nil {
		writeError(w, "add keyword", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateKeyword handles PUT /api/registry/keywords/{keyword}.
//
//	@Summary		Rename, retarget or move a keyword
//	@Tags			registry
//	@Accept			json
//	@Produce		json
//	@Param			keyword	path		string					true	"Keyword"
//	@Param			body	body		UpdateKeywordRequest	true	"Changes"
//	@Success		200		{object}	KeywordEntry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registry/keywords/{keyword} [put]
func (h *Handler) UpdateKeyword(w http.ResponseWriter, r *http.Request) {
	var req UpdateKeywordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.UpdateKeyword(r.Context(), pathParam(r, "keyword"), req)
	if err != nil {
		writeError(w, "update keyword", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// RemoveKeyword handles DELETE /api/registry/keywords/{keyword}.
//
//	@Summary		Remove a keyword; its links go on the next reconciliation
//	@Tags			registry
//	@Param			keyword	path	string	true	"Keyword"
//	@Success		204		"Keyword removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/registry/keywords/{keyword} [delete]
func (h *Handler) RemoveKeyword(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemoveKeyword(r.Context(), pathParam(r, "keyword")); err != nil {
		writeError(w, "remove keyword", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLedger handles GET /api/ledger.
//
//	@Summary		Get the usage ledger
//	@Tags			ledger
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/ledger [get]
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Ledger(r.Context())
	if err != nil {
		writeError(w, "get ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// LinkOn handles PUT /api/ledger/{keyword}/articles/{id}.
//
//	@Summary		Mark a keyword as linked in an article
//	@Tags			ledger
//	@Param			keyword	path	string	true	"Keyword"
//	@Param			id		path	string	true	"Article id"
//	@Success		204		"Link wanted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ledger/{keyword}/articles/{id} [put]
func (h *Handler) LinkOn(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// LinkOff handles DELETE /api/ledger/{keyword}/articles/{id}.
//
//	@Summary		Mark a keyword as unlinked in an article
//	@Tags			ledger
//	@Param			keyword	path	string	true	"Keyword"
//	@Param			id		path	string	true	"Article id"
//	@Success		204		"Link unwanted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ledger/{keyword}/articles/{id} [delete]
func (h *Handler) LinkOff(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, on bool) {
	if err := h.svc.ToggleLink(r.Context(), pathParam(r, "keyword"), pathParam(r, "id"), on); err != nil {
		writeError(w, "toggle link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListArticles handles GET /api/articles.
//
//	@Summary		List articles with the keywords linked in each
//	@Tags			articles
//	@Produce		json
//	@Success		200	{object}	ArticleListResponse
//	@Security		BearerAuth
//	@Router			/articles [get]
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Articles(r.Context())
	if err != nil {
		writeError(w, "list articles", err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleListResponse{Articles: items, Total: len(items)})
}

// SearchArticles handles GET /api/articles/search.
//
//	@Summary		Search article titles
//	@Tags			articles
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/search [get]
func (h *Handler) SearchArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchArticles(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search articles", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Collect handles POST /api/collect.
//
//	@Summary		Rebuild the article index from the posts endpoint
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	CollectResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collect [post]
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	arts, err := h.svc.Collect(r.Context())
	if err != nil {
		writeError(w, "collect", err)
		return
	}
	writeJSON(w, http.StatusOK, CollectResponse{Articles: arts, Total: len(arts)})
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Reconcile documents with the ledger
//	@Tags			runs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReconcileRequest	false	"Documents and mode"
//	@Success		200		{object}	RunReport
//	@Failure		409		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := h.svc.Reconcile(r.Context(), req.IDs, req.DryRun)
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Detect handles POST /api/detect.
//
//	@Summary		Rebuild the ledger from the links found in articles
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	RunReport
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/detect [post]
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Detect(r.Context())
	if err != nil {
		writeError(w, "detect", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent runs
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get the per-document results of a run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		int	true	"Run id"
//	@Success		200	{object}	RunDetailResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid run id"))
		return
	}
	docs, err := h.svc.RunDocuments(r.Context(), id)
	if err != nil {
		writeError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, RunDetailResponse{ID: id, Documents: docs})
}
