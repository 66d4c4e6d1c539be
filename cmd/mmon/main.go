package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mmon/internal/application/usecase/monitor"
	"mmon/internal/domain/model"
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/logger"
	"mmon/internal/infrastructure/svc"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	history := flag.String("history", "", "print stored points for this symbol as JSON lines and exit")
	window := flag.String("window", "", "look-back for -history: <N>m, <N>h, <N>d or all (default 24h)")
	flag.Parse()

	// .env 可选，凭证优先从环境变量读取
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("load .env failed")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	if *history != "" {
		if err := printHistory(ctx, sc, *history, *window); err != nil {
			log.Error().Err(err).Msg("print history failed")
		}
		return
	}

	// monitor usecase
	svcMonitor := monitor.NewService(sc.BuildMonitorServiceDeps())

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols.List)).
		Strs("exchanges", cfg.GetEnabledExchanges()).
		Int("refresh_every_sec", cfg.App.RefreshEverySec).
		Msg("mmon started")

	if err := svcMonitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor service exited")
	}
}

// printHistory 按窗口输出一个交易对的历史点，每行一个 JSON
func printHistory(ctx context.Context, sc *svc.ServiceContext, symbol, window string) error {
	w := model.WindowOrDefault(window)
	symbol = normalizeSymbol(symbol)
	pts := sc.Store.QueryWindow(ctx, symbol, w)

	enc := json.NewEncoder(os.Stdout)
	for _, p := range pts {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	log.Info().Str("symbol", symbol).Str("window", w.String()).Int("points", len(pts)).Msg("history printed")
	return nil
}

// 交易对统一大写；持仓伪交易对（cex, cex:<venue>, onchain）统一小写
func normalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if lower == model.SymbolOnchain || lower == model.SymbolCEX || strings.HasPrefix(lower, model.SymbolCEX+":") {
		return lower
	}
	return strings.ToUpper(s)
}
