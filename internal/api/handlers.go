package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leadflowhq/leadflow/internal/assistant"
	"github.com/leadflowhq/leadflow/internal/conversation"
	"github.com/leadflowhq/leadflow/internal/identity"
	"github.com/leadflowhq/leadflow/internal/storage"
	"go.uber.org/zap"
)

// maxUploadBytes bounds multipart uploads; the provider rejects larger files
// anyway.
const maxUploadBytes = 32 << 20

type handler struct {
	svc    *conversation.Service
	logger *zap.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

type createThreadRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *handler) getOrCreateAssistant(w http.ResponseWriter, r *http.Request) {
	binding, err := h.svc.GetOrCreateAssistant(r.Context(), claimsFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, binding)
}

func (h *handler) createThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	}

	thread, err := h.svc.CreateThread(r.Context(), claimsFrom(r), req.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (h *handler) listThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.svc.ListThreads(r.Context(), claimsFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (h *handler) deleteThread(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteThread(r.Context(), claimsFrom(r), chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.ListMessages(r.Context(), claimsFrom(r), chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "message content is required"})
		return
	}

	messages, err := h.svc.SendMessage(r.Context(), claimsFrom(r), chi.URLParam(r, "threadID"), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file exceeds upload limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "file field is required"})
		return
	}
	defer file.Close()

	// Read one byte past the limit so an at-limit file passes but an
	// oversized one is rejected rather than silently truncated.
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read file"})
		return
	}
	if len(data) > maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file exceeds upload limit"})
		return
	}

	binding, err := h.svc.UploadFile(r.Context(), claimsFrom(r),
		header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListFiles(r.Context(), claimsFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *handler) attachFile(w http.ResponseWriter, r *http.Request) {
	binding, err := h.svc.AttachFile(r.Context(), claimsFrom(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (h *handler) removeFile(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveFile(r.Context(), claimsFrom(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteFile(r.Context(), claimsFrom(r), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps the core error taxonomy onto HTTP statuses.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	var (
		notFound   *storage.NotFoundError
		conflict   *storage.ConflictError
		resolution *identity.ResolutionError
		provider   *assistant.ProviderError
		runFailed  *assistant.RunFailedError
		runTimeout *assistant.RunTimeoutError
		partial    *conversation.PartialWriteError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &resolution):
		status = http.StatusUnauthorized
	case errors.As(err, &runTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &runFailed), errors.As(err, &provider), errors.As(err, &partial):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
