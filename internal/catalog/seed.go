package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadProducts decodes a JSON array of products. Entries without an id or a
// name are rejected, and missing slices are normalised to empty ones.
func ReadProducts(r io.Reader) ([]Product, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}
	seen := make(map[ProductID]bool, len(products))
	for i := range products {
		p := &products[i]
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %d: id and name are required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = true
		if p.Tags == nil {
			p.Tags = []string{}
		}
		if p.Images == nil {
			p.Images = []string{}
		}
		if p.Ratings == nil {
			p.Ratings = []Rating{}
		}
	}
	return products, nil
}

// LoadProducts reads a product seed file.
func LoadProducts(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()
	return ReadProducts(f)
}
