package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/clubsite/server/internal/storage/blob"
	"github.com/rs/zerolog"
)

// Uploads serves GET /uploads/{key...} from the blob store. It is only
// mounted for the disk backend; S3 objects are served by the bucket.
func Uploads(store blob.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if err := blob.ValidateKey(key); err != nil {
			http.NotFound(w, r)
			return
		}
		body, err := store.Open(r.Context(), key)
		if errors.Is(err, blob.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("open upload failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer func() { _ = body.Close() }()

		if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if _, err := io.Copy(w, body); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Str("key", key).Msg("upload copy interrupted")
		}
	})
}
