// Package api provides the JSON handlers for the carousel image catalogue.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/heartreel/internal/store"
)

// ImageHandler handles HTTP requests for image resources.
type ImageHandler struct {
	store    *store.Store
	onChange func()
}

// NewImageHandler returns a handler backed by s. onChange, when set, runs
// after every successful create or delete.
func NewImageHandler(s *store.Store, onChange func()) *ImageHandler {
	return &ImageHandler{store: s, onChange: onChange}
}

// ServeHTTP routes /api/images and /api/images/{id}.
func (h *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/images")
	id = strings.Trim(id, "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createImageRequest struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type imageResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
}

type listImagesResponse struct {
	Images []imageResponse `json:"images"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(img *store.Image) imageResponse {
	return imageResponse{
		ID:        img.ID,
		URL:       img.URL,
		Title:     img.Title,
		Position:  img.Position,
		CreatedAt: img.CreatedAt.Format(time.RFC3339),
	}
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorResponse{Error: message})
}

// validImageURL accepts http(s) URLs and root-relative static paths.
func validImageURL(raw string) bool {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (h *ImageHandler) list(w http.ResponseWriter, r *http.Request) {
	images, err := h.store.Images().List()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}

	resp := listImagesResponse{Images: make([]imageResponse, 0, len(images))}
	for _, img := range images {
		resp.Images = append(resp.Images, toResponse(img))
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *ImageHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	img, err := h.store.Images().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			WriteError(w, http.StatusNotFound, "Image not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get image")
		return
	}
	WriteJSON(w, http.StatusOK, toResponse(img))
}

func (h *ImageHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if !validImageURL(req.URL) {
		WriteError(w, http.StatusBadRequest, "URL must be http(s) or start with /")
		return
	}
	if req.Position < 0 {
		WriteError(w, http.StatusBadRequest, "Position must not be negative")
		return
	}

	img := &store.Image{
		ID:       uuid.New().String(),
		URL:      req.URL,
		Title:    req.Title,
		Position: req.Position,
	}
	if err := h.store.Images().Create(img); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to create image")
		return
	}

	h.changed()
	WriteJSON(w, http.StatusCreated, toResponse(img))
}

func (h *ImageHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Images().Delete(id); err != nil {
		if errors.Is(err, store.ErrImageNotFound) {
			WriteError(w, http.StatusNotFound, "Image not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to delete image")
		return
	}

	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImageHandler) changed() {
	if h.onChange != nil {
		h.onChange()
	}
}
