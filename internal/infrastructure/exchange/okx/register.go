package okx

import (
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/exchange"
)

// init() registers the OKX venue factory
func init() {
	exchange.Register(Name, NewVenue)
}

// NewVenue builds the OKX sources; liquidations come from REST instead of a stream.
func NewVenue(cfg config.ExchangeConfig, opts exchange.Options) *exchange.Venue {
	rc := exchange.NewRESTClient(Name, cfg.RestURL, cfg.RPS, cfg.Burst).WithTimeout(opts.Timeout)
	sizes := newContractSizes(rc)
	v := &exchange.Venue{
		Name:      Name,
		Derivs:    NewDerivsAdapter(rc),
		Book:      NewBookAdapter(rc, sizes, opts.BookLimit),
		LiqSource: NewLiquidationSource(rc, sizes),
	}
	if cfg.HasCredentials() && cfg.Passphrase != "" {
		v.Balances = NewBalanceAdapter(rc, NewCredentials(cfg.APIKey, cfg.APISecret, cfg.Passphrase))
	}
	return v
}
