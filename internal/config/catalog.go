package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// CatalogEntry is one priced service type of the catalog file.
type CatalogEntry struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// LoadCatalog reads the service price list.
func LoadCatalog(path string) (map[string]decimal.Decimal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file struct {
		Services []CatalogEntry `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("catalog %s has no services", path)
	}

	prices := make(map[string]decimal.Decimal, len(file.Services))
	for _, s := range file.Services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry without name")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(s.Price))
		if err != nil {
			return nil, fmt.Errorf("catalog price of %q: %w", name, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("catalog price of %q is negative", name)
		}
		prices[name] = price
	}
	return prices, nil
}
