package designs

import (
	"garment-designer/core"
	"garment-designer/designer"
	"garment-designer/handlers/api/respond"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// pricedDesign is a design record with its quoted price.
type pricedDesign struct {
	*core.DesignRecord
	Price int64 `json:"price"`
}

// HandleList lists the caller's designs, newest first. Prices are quoted from
// the sticker count kept on each record.
func HandleList(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := respond.User(w, r)
		if !ok {
			return
		}

		records, err := store.List(r.Context(), user.Subject)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": user.Subject,
			}).Error("Failed to list designs")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list designs"})
			return
		}

		out := make([]pricedDesign, 0, len(records))
		for _, rec := range records {
			out = append(out, pricedDesign{DesignRecord: rec, Price: designer.PriceForStickers(rec.StickerCount)})
		}

		render.JSON(w, r, out)
	}
}

func HandleGet(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := respond.User(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Design id is required"})
			return
		}

		record, err := store.Get(r.Context(), user.Subject, id)
		if err != nil {
			respond.Error(w, r, err, "Failed to get design")
			return
		}

		render.JSON(w, r, pricedDesign{DesignRecord: record, Price: designer.Price(record.ElementsJSON)})
	}
}
