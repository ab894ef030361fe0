package models

import (
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultPrice applies to service types missing from the catalog.
var DefaultPrice = decimal.NewFromInt(500)

var (
	priceMu      sync.RWMutex
	priceCatalog = map[string]decimal.Decimal{
		"Plumbing":   decimal.NewFromInt(500),
		"Electrical": decimal.NewFromInt(400),
		"Painting":   decimal.NewFromInt(2000),
		"Cleaning":   decimal.NewFromInt(1300),
		"AC Service": decimal.NewFromInt(700),
		"Carpenter":  decimal.NewFromInt(600),
	}
)

// PriceFor returns the catalog price of a service type.
func PriceFor(serviceType string) decimal.Decimal {
	priceMu.RLock()
	defer priceMu.RUnlock()
	if p, ok := priceCatalog[serviceType]; ok {
		return p
	}
	return DefaultPrice
}

// ServiceTypes returns the catalog keys.
func ServiceTypes() []string {
	priceMu.RLock()
	defer priceMu.RUnlock()
	out := make([]string, 0, len(priceCatalog))
	for k := range priceCatalog {
		out = append(out, k)
	}
	return out
}

// SetPriceCatalog replaces the catalog, e.g. from a configuration file.
func SetPriceCatalog(prices map[string]decimal.Decimal) {
	priceMu.Lock()
	defer priceMu.Unlock()
	priceCatalog = make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		priceCatalog[k] = v
	}
}
