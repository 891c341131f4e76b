package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
)

type InventoryHandler struct {
	Ledger inventory.Ledger
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Post("/inventory", h.provision)
	r.Patch("/inventory/{productID}", h.adjust)
	r.Get("/inventory/{productID}", h.get)
}

func (h *InventoryHandler) provision(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ProductID  string `json:"product_id"`
		TotalStock int    `json:"total_stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if in.ProductID == "" || in.TotalStock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	rec, err := h.Ledger.Provision(r.Context(), in.ProductID, in.TotalStock)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TotalStock int `json:"total_stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	rec, err := h.Ledger.AdjustTotal(r.Context(), chi.URLParam(r, "productID"), in.TotalStock)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
