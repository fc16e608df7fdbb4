package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/CatalogLoader/internal/core"
)

// productJSON is the wire shape of a catalog record.
type productJSON struct {
	ID               int64     `json:"id"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Category         string    `json:"category,omitempty"`
	Price            string    `json:"price"`
	Stock            int       `json:"stock"`
	PendingAssetName string    `json:"pending_asset_name,omitempty"`
	PrimaryAssetID   int64     `json:"primary_asset_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func recordJSON(rec *core.CatalogRecord) productJSON {
	return productJSON{
		ID:               rec.ID,
		SKU:              rec.SKU,
		Name:             rec.Name,
		Description:      rec.Description,
		Category:         rec.Category,
		Price:            rec.Price,
		Stock:            rec.Stock,
		PendingAssetName: rec.PendingAssetName,
		PrimaryAssetID:   rec.PrimaryAssetID,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// handleListProducts returns catalog records ordered by SKU.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	records, err := s.catalog.List(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]productJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON(rec))
	}
	writeJSON(w, map[string]interface{}{"products": out})
}
