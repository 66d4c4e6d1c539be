package binance

import (
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/exchange"
)

// init() registers the Binance venue factory
// 这样避免了在 wiring 层硬编码 Binance
func init() {
	exchange.Register(Name, NewVenue)
}

// NewVenue builds every Binance data source sharing one rate limiter.
func NewVenue(cfg config.ExchangeConfig, opts exchange.Options) *exchange.Venue {
	rc := exchange.NewRESTClient(Name, cfg.RestURL, cfg.RPS, cfg.Burst).WithTimeout(opts.Timeout)
	v := &exchange.Venue{
		Name:    Name,
		Derivs:  NewDerivsAdapter(rc),
		Book:    NewBookAdapter(rc, opts.BookLimit),
		History: NewHistorySource(rc),
	}
	if cfg.WsURL != "" {
		v.LiqFeed = NewLiquidationFeed(cfg.WsURL)
	}
	if cfg.HasCredentials() && cfg.SpotURL != "" {
		v.Balances = NewBalanceAdapter(rc.WithBaseURL(cfg.SpotURL), NewCredentials(cfg.APIKey, cfg.APISecret))
	}
	return v
}
