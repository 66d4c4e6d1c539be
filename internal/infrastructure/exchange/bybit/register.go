package bybit

import (
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/exchange"
)

// init() registers the Bybit venue factory
func init() {
	exchange.Register(Name, NewVenue)
}

// NewVenue builds the Bybit sources. Bybit has no backfill history source.
func NewVenue(cfg config.ExchangeConfig, opts exchange.Options) *exchange.Venue {
	rc := exchange.NewRESTClient(Name, cfg.RestURL, cfg.RPS, cfg.Burst).WithTimeout(opts.Timeout)
	v := &exchange.Venue{
		Name:   Name,
		Derivs: NewDerivsAdapter(rc),
		Book:   NewBookAdapter(rc, opts.BookLimit),
	}
	if cfg.WsURL != "" {
		v.LiqFeed = NewLiquidationFeed(cfg.WsURL)
	}
	if cfg.HasCredentials() {
		v.Balances = NewBalanceAdapter(rc, NewCredentials(cfg.APIKey, cfg.APISecret))
	}
	return v
}
