package pricing

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tienbob/Tubex-sub001/internal/platform/httpx"
	"github.com/tienbob/Tubex-sub001/internal/shared"
)

// Handler exposes price list, unified pricing and migration endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a pricing handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers the pricing routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/price-lists", func(r chi.Router) {
		r.Post("/", h.createPriceList)
		r.Get("/", h.listPriceLists)
		r.Get("/{id}", h.getPriceList)
		r.Put("/{id}", h.updatePriceList)
		r.Post("/{id}/items", h.addItem)
		r.Put("/{id}/items", h.upsertItem)
		r.Delete("/{id}/items/{productID}", h.removeItem)
	})
	r.Route("/pricing", func(r chi.Router) {
		r.Post("/", h.createPricing)
		r.Get("/", h.listPricing)
		r.Put("/{id}", h.updatePricing)
		r.Get("/resolve", h.resolvePrice)
		r.Get("/history", h.priceHistory)
		r.Post("/migrate", h.migrate)
		r.Post("/migrate/rollback", h.rollback)
	})
}

func (h *Handler) createPriceList(w http.ResponseWriter, r *http.Request) {
	var req CreatePriceListRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	list, err := h.service.CreatePriceList(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, list)
}

func (h *Handler) listPriceLists(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lists, err := h.service.ListPriceLists(r.Context(), companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, lists)
}

func (h *Handler) getPriceList(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.GetPriceList(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, list)
}

func (h *Handler) updatePriceList(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePriceListRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	list, err := h.service.UpdatePriceList(r.Context(), shared.ActorFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, list)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpsertPriceListItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	list, err := h.service.AddPriceListItem(r.Context(), shared.ActorFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, list)
}

func (h *Handler) upsertItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpsertPriceListItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	list, err := h.service.UpsertPriceListItem(r.Context(), shared.ActorFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, list)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := parseID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemovePriceListItem(r.Context(), shared.ActorFromContext(r.Context()), id, productID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) createPricing(w http.ResponseWriter, r *http.Request) {
	var req CreatePricingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	entry, err := h.service.CreatePricing(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, entry)
}

func (h *Handler) updatePricing(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePricingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	entry, err := h.service.UpdatePricing(r.Context(), shared.ActorFromContext(r.Context()), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, entry)
}

func (h *Handler) listPricing(w http.ResponseWriter, r *http.Request) {
	req := ListPricingRequest{}
	var err error
	if req.CompanyID, err = queryInt64(r, "company_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if s := r.URL.Query().Get("product_id"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			req.ProductID = &v
		}
	}
	if s := r.URL.Query().Get("pricing_type"); s != "" {
		pt := PricingType(s)
		if !pt.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation failed", fmt.Sprintf("unknown pricing type %q", s))
			return
		}
		req.PricingType = &pt
	}
	req.ActiveOnly = r.URL.Query().Get("active") == "true"

	page, limit := queryPage(r)
	req.Limit = limit
	req.Offset = (page - 1) * limit

	entries, total, err := h.service.ListPricing(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Page(w, entries, shared.NewPagination(page, limit, total))
}

func (h *Handler) resolvePrice(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := queryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	resolved, err := h.service.ResolvePrice(r.Context(), companyID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, resolved)
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := queryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	history, err := h.service.PriceHistory(r.Context(), companyID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, history)
}

func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	report, err := h.service.Migrate(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, report)
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	removed, err := h.service.RollbackMigration(r.Context(), shared.ActorFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"removed": removed})
}

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s is required", shared.ErrValidation, name)
	}
	return v, nil
}

func queryPage(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit
}
