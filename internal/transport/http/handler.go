package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"iq-card-service/internal/app"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/domain"
)

// ExportNotice is the only message shown to users when a card export fails.
const ExportNotice = "Could not generate image. Try again."

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type createSessionRequest struct {
	Count int `json:"count"`
}

type answerRequest struct {
	QuestionIndex int `json:"questionIndex"`
	Choice        int `json:"choice"`
}

type profileResponse struct {
	Profile domain.Profile   `json:"profile"`
	Avatar  avatar.StateView `json:"avatar"`
}

// Handler serves the REST API over the quiz use cases.
type Handler struct {
	service *app.QuizService
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Brands())
}

func (h *Handler) GetBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.service.Brand(mux.Vars(r)["brand"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, brand)
}

func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	brand, err := h.service.Brand(mux.Vars(r)["brand"])
	if err != nil {
		writeError(w, err)
		return
	}
	articles := brand.Articles
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, http.StatusOK, articles)
}

// CreateSession samples questions and starts a new session. The body is optional.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	view, err := h.service.StartSession(r.Context(), mux.Vars(r)["brand"], req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.service.Delete(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// StartSession resamples and restarts an existing session.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	view, err := h.service.Restart(r.Context(), mux.Vars(r)["id"], req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Reset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	view, err := h.service.Select(r.Context(), mux.Vars(r)["id"], req.QuestionIndex, req.Choice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	profile, state, err := h.service.UpdateProfile(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile, Avatar: state})
}

func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Avatar(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AvatarError is reported by the client when the displayed avatar failed to load.
func (h *Handler) AvatarError(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.AvatarError(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ExportCard renders the share card and returns it as a PNG attachment.
func (h *Handler) ExportCard(w http.ResponseWriter, r *http.Request) {
	dl, err := h.service.ExportCard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		// the exporter already logged the render failure
		if errors.Is(err, domain.ErrExportFailed) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ExportNotice})
			return
		}
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(dl.Data)
}

// ResolveAvatar proxies the first reachable provider image, or initials.
func (h *Handler) ResolveAvatar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	img, err := h.service.ResolveAvatar(r.Context(), mux.Vars(r)["brand"], q.Get("handle"), q.Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if img.Generated() {
		w.Header().Set("X-Avatar-Initials", img.Initials)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrBrandNotFound),
		errors.Is(err, domain.ErrBankNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleQuestion),
		errors.Is(err, domain.ErrSessionNotRunning),
		errors.Is(err, domain.ErrSessionNotFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrChoiceOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
