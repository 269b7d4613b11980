package dto

import (
	"errors"
	"fmt"

	"github.com/mrops-br/price-cache-api/internal/app/service"
	"github.com/mrops-br/price-cache-api/internal/domain"
)

// ErrEmptyBatch is returned when a batch request carries no products
var ErrEmptyBatch = errors.New("at least one product is required")

// RecordBatchRequest represents the request to record scraped products
type RecordBatchRequest struct {
	Products []*domain.Product `json:"products"`
}

// Validate checks every product in the batch
func (r *RecordBatchRequest) Validate() error {
	if len(r.Products) == 0 {
		return ErrEmptyBatch
	}
	for i, p := range r.Products {
		if p == nil {
			return fmt.Errorf("products[%d]: %w", i, domain.ErrInvalidProductTitle)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}
	return nil
}

// BatchResponse represents the outcome of a recorded batch
type BatchResponse struct {
	BatchID   string `json:"batch_id"`
	Added     int    `json:"added"`
	Increased int    `json:"increased"`
	Decreased int    `json:"decreased"`
	Unchanged int    `json:"unchanged"`
	Records   int    `json:"records"`
}

// ToBatchResponse converts a service BatchResult to BatchResponse
func ToBatchResponse(r *service.BatchResult) *BatchResponse {
	return &BatchResponse{
		BatchID:   r.BatchID,
		Added:     r.Added,
		Increased: r.Increased,
		Decreased: r.Decreased,
		Unchanged: r.Unchanged,
		Records:   r.Records,
	}
}

// CheckResponse represents the outcome of a freshness check
type CheckResponse struct {
	Title   string `json:"product_title"`
	Updated bool   `json:"updated"`
}

// ProductListResponse wraps a list of products
type ProductListResponse struct {
	Count    int               `json:"count"`
	Products []*domain.Product `json:"products"`
}

// ToProductListResponse converts a product list to ProductListResponse
func ToProductListResponse(products []*domain.Product) *ProductListResponse {
	if products == nil {
		products = []*domain.Product{}
	}
	return &ProductListResponse{
		Count:    len(products),
		Products: products,
	}
}
