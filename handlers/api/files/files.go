package files

import (
	"errors"
	"garment-designer/core"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// HandleGet serves an uploaded image from a self-hosted image store.
func HandleGet(reader core.ImageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "File key is required"})
			return
		}

		data, contentType, err := reader.Open(r.Context(), key)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				logrus.WithField("key", key).Warn("File not found")
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "File not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"error": err,
				"key":   key,
			}).Error("Failed to read file")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read file"})
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if _, err := w.Write(data); err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"key":   key,
			}).Warn("Failed to write file")
		}
	}
}
