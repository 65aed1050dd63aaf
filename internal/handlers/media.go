package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
)

// MediaHandler issues presigned URLs so encrypted media moves directly
// between clients and the object store.
type MediaHandler struct {
	Media MediaSigner
}

type uploadURLBody struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

// UploadURL handles POST /api/v1/media/upload-url.
func (h MediaHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var body uploadURLBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid media payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Key == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}
	if body.ContentType == "" {
		body.ContentType = "application/octet-stream"
	}

	url, err := h.Media.UploadURL(ctx, body.Key, body.ContentType)
	if err != nil {
		logger.Error("presign upload failed", "key", body.Key, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to sign upload"})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": url})
}

// DownloadURL handles GET /api/v1/media/download-url?key=.
func (h MediaHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}

	url, err := h.Media.DownloadURL(ctx, key)
	if err != nil {
		logger.Error("presign download failed", "key", key, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to sign download"})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": url})
}

// Delete handles DELETE /api/v1/media?key=. Clients call it after a
// message carrying an attachment is deleted on every device.
func (h MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}

	if err := h.Media.Delete(ctx, key); err != nil {
		logger.Error("media delete failed", "key", key, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to delete object"})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}
