package assets

import (
	"garment-designer/assets"
	"net/http"

	"github.com/go-chi/render"
)

// HandleCatalog serves the garment colors, stickers and fonts offered to the
// editor.
func HandleCatalog(catalog *assets.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, catalog)
	}
}
