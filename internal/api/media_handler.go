package api

import (
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/haneul/wadispatch/internal/auth"
	"github.com/haneul/wadispatch/internal/media"
)

// maxUploadBytes caps media uploads. WhatsApp rejects images over 5 MB, so
// anything larger is pointless to accept.
const maxUploadBytes = 5 << 20

var allowedMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadMediaHandler handles POST /api/v1/media: it stores the uploaded file
// and returns the public URL to reference as media.source_url when
// enqueueing an image message.
func UploadMediaHandler(store media.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := auth.VendorFromContext(r.Context())
		if vendorID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart form or file too large")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		ext, ok := allowedMimeTypes[mimeType]
		if !ok {
			respondError(w, http.StatusUnsupportedMediaType, "unsupported media type")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read upload")
			return
		}

		key := path.Join(vendorID.String(), uuid.NewString()+ext)
		if err := store.Put(r.Context(), key, data); err != nil {
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		respondJSON(w, http.StatusCreated, map[string]string{
			"key":        key,
			"source_url": store.URL(key),
			"mime_type":  mimeType,
		})
	}
}
