package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidProductTitle = errors.New("product title is required")
	ErrInvalidProductPrice = errors.New("product price must be a finite, non-negative number")
)

// JSON keys of the fields every product carries. Everything else in a
// product payload is kept as-is in Attributes.
const (
	TitleKey = "product_title"
	PriceKey = "product_price"
)

// Product represents one observed product listing
type Product struct {
	Title      string
	Price      float64
	Attributes map[string]any
}

// NewProduct creates a new product with validation
func NewProduct(title string, price float64, attributes map[string]any) (*Product, error) {
	product := &Product{
		Title:      title,
		Price:      price,
		Attributes: attributes,
	}

	if err := product.Validate(); err != nil {
		return nil, err
	}

	return product, nil
}

// Validate performs business validation on the product
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrInvalidProductTitle
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return ErrInvalidProductPrice
	}
	return nil
}

// Clone returns a copy that shares no map with p.
func (p *Product) Clone() *Product {
	c := &Product{Title: p.Title, Price: p.Price}
	if p.Attributes != nil {
		c.Attributes = make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// MarshalJSON writes the product as a single flat object.
func (p Product) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Attributes)+2)
	for k, v := range p.Attributes {
		flat[k] = v
	}
	flat[TitleKey] = p.Title
	flat[PriceKey] = p.Price
	return json.Marshal(flat)
}

// UnmarshalJSON reads a flat product object, moving unknown keys into
// Attributes. Numbers are kept as json.Number so attributes survive a
// rewrite digit for digit.
func (p *Product) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&flat); err != nil {
		return err
	}
	if flat == nil {
		return fmt.Errorf("product payload must be a JSON object")
	}

	title, ok := flat[TitleKey].(string)
	if !ok {
		return fmt.Errorf("%s: %w", TitleKey, ErrInvalidProductTitle)
	}
	num, ok := flat[PriceKey].(json.Number)
	if !ok {
		return fmt.Errorf("%s: %w", PriceKey, ErrInvalidProductPrice)
	}
	price, err := num.Float64()
	if err != nil {
		return fmt.Errorf("%s: %w", PriceKey, ErrInvalidProductPrice)
	}
	delete(flat, TitleKey)
	delete(flat, PriceKey)

	p.Title = title
	p.Price = price
	p.Attributes = nil
	if len(flat) > 0 {
		p.Attributes = flat
	}
	return nil
}
