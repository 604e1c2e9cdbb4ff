package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrProductNotFound = errors.New("catalog: product not found")

// Product is one entry of the price list file.
type Product struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Price        int64  `yaml:"price"`
	InitialStock int    `yaml:"initial_stock"`
}

type file struct {
	Currency string    `yaml:"currency"`
	Products []Product `yaml:"products"`
}

// Catalog is a read-only price list. Prices read from it are snapshotted
// into orders at checkout and never consulted again for that order.
type Catalog struct {
	currency string
	byID     map[string]Product
}

// Load reads a YAML price list. Unknown fields are rejected so a typo in
// "initial_stock" does not silently seed zero units.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{currency: f.Currency, byID: make(map[string]Product, len(f.Products))}
	for i, p := range f.Products {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("catalog: product %d has no id", i)
		case p.Price <= 0:
			return nil, fmt.Errorf("catalog: product %q must have a positive price", p.ID)
		case p.InitialStock < 0:
			return nil, fmt.Errorf("catalog: product %q has negative initial_stock", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product %q", p.ID)
		}
		c.byID[p.ID] = p
	}
	return c, nil
}

func (c *Catalog) Price(ctx context.Context, productID string) (int64, error) {
	_ = ctx
	p, ok := c.byID[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return p.Price, nil
}

func (c *Catalog) Currency() string { return c.currency }

// Products returns every product ordered by id.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
