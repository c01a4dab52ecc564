package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/everzim/internal/backup"
	"github.com/starford/everzim/internal/sanitize"
)

const maxUploadBytes = 50 << 20 // 50 MB

// FileHandler accepts exported notes and serves the output tree.
type FileHandler struct {
	svc *backup.Service
}

// NewFileHandler creates a handler over the service's output tree.
func NewFileHandler(svc *backup.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

// safePath validates a slash path relative to the output root and returns
// its absolute location.
func (h *FileHandler) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	cleaned := path.Clean("/" + rel)[1:]
	if cleaned == "" || strings.Contains(rel, "..") {
		return "", fmt.Errorf("invalid path: %s", rel)
	}
	root := h.svc.Store().Root()
	abs := filepath.Join(root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes output directory")
	}
	return abs, nil
}

// ServeFile handles GET /api/files/*, mostly used for embedded images.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safePath(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/notes (multipart/form-data, field "file", optional
// field "dir"). The note is stored under dir with a sanitized name and
// converted right away.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean(header.Filename))
	if !strings.EqualFold(path.Ext(name), ".html") {
		writeJSON(w, http.StatusBadRequest, errorBody("only .html notes are accepted"))
		return
	}
	rel := sanitize.Full(name)
	if dir := strings.Trim(r.FormValue("dir"), "/"); dir != "" {
		rel = sanitize.Segments(dir) + "/" + rel
	}
	if _, err := h.safePath(rel); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	out, err := h.svc.Import(r.Context(), rel, data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to convert note"))
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		Path: out,
		Size: int64(len(data)),
		URL:  "/api/files/" + out,
	})
}
