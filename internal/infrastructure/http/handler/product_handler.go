package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/price-cache-api/internal/app/dto"
	"github.com/mrops-br/price-cache-api/internal/app/service"
	"github.com/mrops-br/price-cache-api/internal/domain"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/http/response"
)

// maxBodyBytes bounds request bodies; a scraped page batch is far smaller.
const maxBodyBytes = 8 << 20

var errMalformedBody = errors.New("malformed request body")

// ProductHandler handles HTTP requests for products
type ProductHandler struct {
	store  *service.PriceCacheStore
	logger *slog.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(store *service.PriceCacheStore, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		store:  store,
		logger: logger,
	}
}

// RecordBatch handles POST /products
func (h *ProductHandler) RecordBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.store.RecordBatch(r.Context(), req.Products)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToBatchResponse(result))
}

// CheckProduct handles POST /products/check
func (h *ProductHandler) CheckProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !h.decode(w, r, &product) {
		return
	}
	if err := product.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.store.CheckAndRefresh(r.Context(), &product)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.CheckResponse{Title: product.Title, Updated: updated})
}

// ListProducts handles GET /products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Records(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToProductListResponse(products))
}

// ListCached handles GET /products/cached
func (h *ProductHandler) ListCached(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Cached(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, dto.ToProductListResponse(products))
}

// GetProduct handles GET /products/{title}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	// chi matches on RawPath when the path holds escaped slashes.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(title)
		if err != nil {
			response.Error(w, http.StatusBadRequest, err)
			return
		}
		title = unescaped
	}

	product, err := h.store.Record(r.Context(), title)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

func (h *ProductHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body",
			slog.String("error", err.Error()),
		)
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInvalidProductTitle) || errors.Is(err, domain.ErrInvalidProductPrice) {
			response.Error(w, status, err)
		} else {
			response.Error(w, status, fmt.Errorf("%w: %v", errMalformedBody, err))
		}
		return false
	}
	return true
}
