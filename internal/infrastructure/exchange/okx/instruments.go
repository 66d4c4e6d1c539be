package okx

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"mmon/internal/infrastructure/exchange"
)

type instrument struct {
	InstID   string `json:"instId"`
	CtVal    string `json:"ctVal"`
	CtValCcy string `json:"ctValCcy"`
}

// contractSizes 缓存 SWAP 合约面值（ctVal），用于把张数换算成币数量
type contractSizes struct {
	rc *exchange.RESTClient

	mu    sync.Mutex
	sizes map[string]float64
}

func newContractSizes(rc *exchange.RESTClient) *contractSizes {
	return &contractSizes{rc: rc, sizes: make(map[string]float64)}
}

func (c *contractSizes) get(ctx context.Context, instID string) (float64, error) {
	c.mu.Lock()
	v, ok := c.sizes[instID]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	var rows []instrument
	params := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	if err := publicGet(ctx, c.rc, "/api/v5/public/instruments", params, &rows); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.InstID != instID {
			continue
		}
		v, err := exchange.ParseFloat(r.CtVal)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid ctVal %q for %s", r.CtVal, instID)
		}
		c.mu.Lock()
		c.sizes[instID] = v
		c.mu.Unlock()
		return v, nil
	}
	return 0, fmt.Errorf("instrument %s not found", instID)
}
