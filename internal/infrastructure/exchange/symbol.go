package exchange

import (
	"strings"
)

// SymbolConverter 符号转换接口
// 各交易所可以实现此接口来提供符号转换功能
type SymbolConverter interface {
	// Symbol2Coin 将交易对转换为币种
	// 例: BTCUSDT -> BTC, BTC-USDT-SWAP -> BTC
	Symbol2Coin(symbol string) string

	// Native 将统一格式的交易对转换为交易所格式
	// 例: BTCUSDT -> BTC-USDT-SWAP
	Native(symbol string) string
}

// 按长度从长到短匹配
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "USD"}

// SplitSymbol splits a unified symbol into base and quote, e.g. BTCUSDT -> BTC, USDT.
func SplitSymbol(symbol string) (base, quote string) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range quoteAssets {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			return strings.TrimSuffix(sym, q), q
		}
	}
	return sym, ""
}

// CommonSymbolConverter 交易对与统一格式一致的交易所（Binance、Bybit）
type CommonSymbolConverter struct{}

func (CommonSymbolConverter) Symbol2Coin(symbol string) string {
	base, _ := SplitSymbol(symbol)
	return base
}

func (CommonSymbolConverter) Native(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// DashedSymbolConverter OKX 风格：BTC-USDT 加可选后缀（-SWAP）
type DashedSymbolConverter struct {
	suffix string
}

func NewDashedSymbolConverter(suffix string) *DashedSymbolConverter {
	return &DashedSymbolConverter{suffix: strings.ToUpper(strings.TrimSpace(suffix))}
}

func (c *DashedSymbolConverter) Symbol2Coin(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(sym, "-"); i > 0 {
		return sym[:i]
	}
	base, _ := SplitSymbol(sym)
	return base
}

func (c *DashedSymbolConverter) Native(symbol string) string {
	base, quote := SplitSymbol(symbol)
	if quote == "" {
		return base
	}
	return base + "-" + quote + c.suffix
}

// Unified converts a dashed instrument id back to the unified form.
// 例: BTC-USDT-SWAP -> BTCUSDT
func (c *DashedSymbolConverter) Unified(inst string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(inst)), "-")
	if len(parts) < 2 {
		return strings.Join(parts, "")
	}
	return parts[0] + parts[1]
}
