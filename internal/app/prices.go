package app

import "context"

// PriceResult is a template price.
type PriceResult struct {
	Tpl   string `json:"tpl"`
	Price int64  `json:"price"`
}

// PriceUsecase looks up template prices.
type PriceUsecase interface {
	PriceOf(ctx context.Context, tpl string) PriceResult
}

// TemplatePricer is implemented by *valuation.Service.
type TemplatePricer interface {
	PriceOf(ctx context.Context, tpl string) int64
}

// PriceService implements PriceUsecase.
type PriceService struct {
	Pricer TemplatePricer
}

// PriceOf returns the current per-unit price of tpl.
func (s *PriceService) PriceOf(ctx context.Context, tpl string) PriceResult {
	return PriceResult{Tpl: tpl, Price: s.Pricer.PriceOf(ctx, tpl)}
}
