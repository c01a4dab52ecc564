package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/everzim/internal/apperr"
	"github.com/starford/everzim/internal/backup"
	"github.com/starford/everzim/internal/sanitize"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *backup.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *backup.Service) *Handler {
	return &Handler{svc: svc}
}

// decode reads a JSON body into v and validates it. It writes the 400
// response itself and reports whether the handler should go on.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// Rewrite handles POST /api/rewrite.
//
//	@Summary		Rewrite markdown into Zim wiki syntax
//	@Tags			markup
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RewriteRequest	true	"Markdown document"
//	@Success		200		{object}	ContentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rewrite [post]
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	var req RewriteRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Content: h.svc.Rewriter().Rewrite(req.Content)})
}

// Sanitize handles POST /api/sanitize.
//
//	@Summary		Sanitize a file name
//	@Tags			markup
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SanitizeRequest	true	"Name and mode"
//	@Success		200		{object}	SanitizeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sanitize [post]
func (h *Handler) Sanitize(w http.ResponseWriter, r *http.Request) {
	var req SanitizeRequest
	if !decode(w, r, &req) {
		return
	}
	var out string
	mode, err := sanitize.ParseMode(req.Mode)
	if err == nil {
		out, err = sanitize.Sanitize(req.Input, mode)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, SanitizeResponse{Output: out})
}

// Convert handles POST /api/convert.
//
//	@Summary		Convert an HTML note to markdown or Zim
//	@Tags			markup
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConvertRequest	true	"HTML note"
//	@Success		200		{object}	ContentResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := h.svc.Render(req.HTML, req.Zim)
	if err != nil {
		slog.Error("convert failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Content: text})
}
