package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/wwfm-inc/wwfm-engine/pkg/categories"
)

// CategorySummary is one entry of the category list.
type CategorySummary struct {
	Category       categories.Category `json:"category"`
	Label          string              `json:"label"`
	DosageVariants bool                `json:"dosage_variants"`
	FieldCount     int                 `json:"field_count"`
}

// CategoriesHandler exposes the category registry so forms are rendered
// from the same field definitions the normalizer enforces.
type CategoriesHandler struct {
	registry *categories.Registry
	logger   *zap.Logger
}

// NewCategoriesHandler creates a categories handler. A nil registry uses the
// embedded default.
func NewCategoriesHandler(registry *categories.Registry, logger *zap.Logger) *CategoriesHandler {
	if registry == nil {
		registry = categories.Default()
	}
	return &CategoriesHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the categories handler's routes on the given mux.
func (h *CategoriesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/categories", h.List)
	mux.HandleFunc("GET /api/categories/{category}/schema", h.GetSchema)
}

// List handles GET /api/categories
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	schemas := h.registry.Schemas()
	items := make([]CategorySummary, 0, len(schemas))
	for _, s := range schemas {
		items = append(items, CategorySummary{
			Category:       s.Category,
			Label:          s.Label,
			DosageVariants: s.DosageVariants,
			FieldCount:     len(s.FieldSpecs),
		})
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: items}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSchema handles GET /api/categories/{category}/schema
func (h *CategoriesHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	category := categories.Category(r.PathValue("category"))
	schema, ok := h.registry.Lookup(category)
	if !ok {
		if err := ErrorResponse(w, http.StatusNotFound, "unknown_category", "Unknown category: "+string(category)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: schema}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
