package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mmon/internal/application/port"
	"mmon/internal/application/service"
	"mmon/internal/application/usecase/monitor"
	domainservice "mmon/internal/domain/service"
	"mmon/internal/infrastructure/chain"
	"mmon/internal/infrastructure/config"
	"mmon/internal/infrastructure/exchange"
	_ "mmon/internal/infrastructure/exchange/binance"
	_ "mmon/internal/infrastructure/exchange/bybit"
	_ "mmon/internal/infrastructure/exchange/okx"
	"mmon/internal/infrastructure/storage/composite"
	"mmon/internal/infrastructure/storage/memory"
	pgrepo "mmon/internal/infrastructure/storage/postgres"
	redisrepo "mmon/internal/infrastructure/storage/redis"
	sqliterepo "mmon/internal/infrastructure/storage/sqlite"
	"mmon/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	venues      []*exchange.Venue
	redisClient *redisclient.Client
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo

	series        port.SeriesRepository
	contributions port.ContributionStore
	publishers    composite.Publishers

	// 输出端口
	Sink port.Sink

	// 应用业务组件（依赖基础设施）
	Store        *service.TimeSeriesStore
	Cache        *service.PartialCache
	Depth        *service.DepthService
	Liquidations *service.LiquidationService
	onchain      []port.SourceAdapter

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	// 初始化所有组件，按依赖顺序
	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 初始化所有应用组件
// 按照依赖关系有序初始化，确保不会有循环依赖
func (sc *ServiceContext) initializeComponents() error {
	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return err
	}

	// 1. 交易所
	sc.venues = buildVenues(sc.Config)
	if len(sc.derivs()) == 0 {
		return ErrNoSourcesEnabled
	}

	// 2. 应用服务
	cfg := sc.Config
	sc.Store = service.NewTimeSeriesStore(sc.series)
	sc.Cache = service.NewPartialCache(sc.contributions, cfg.OIQuorum(),
		service.WithMaxAge(time.Duration(cfg.Derivatives.OIMaxAgeMin)*time.Minute))

	if cfg.Orderbook.Enabled {
		if books := sc.books(); len(books) > 0 {
			binner := domainservice.NewBinner(cfg.Orderbook.Depth, cfg.Orderbook.Decimals)
			sc.Depth = service.NewDepthService(books, binner, cfg.RequestTimeout())
		} else {
			log.Warn().Msg("orderbook enabled but no venue serves order books")
		}
	}
	if cfg.Liquidations.Enabled {
		sc.Liquidations = service.NewLiquidationService(sc.liqSources(),
			time.Duration(cfg.Liquidations.HorizonMin)*time.Minute, cfg.Liquidations.BinSize)
	}
	if cfg.Holdings.Enabled {
		sc.onchain = chain.NewAdapters(*cfg)
	}

	log.Info().
		Int("venues", len(sc.venues)).
		Int("quorum", sc.Cache.Quorum()).
		Bool("depth", sc.Depth != nil).
		Bool("liquidations", sc.Liquidations != nil).
		Int("onchain", len(sc.onchain)).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (SQLite / Postgres / Redis)
func (sc *ServiceContext) initializeStorage() error {
	var repos []port.SeriesRepository

	// SQLite 初始化
	if sc.Config.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("%w: sqlite: %w", ErrStorageInitFailed, err)
		}
		repos = append(repos, sc.sqliteRepo)
	}

	// Postgres 初始化
	if sc.Config.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("%w: postgres: %w", ErrStorageInitFailed, err)
		}
		repos = append(repos, sc.pgRepo)
	}

	// Redis 初始化
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("%w: redis: %w", ErrStorageInitFailed, err)
		}
		sc.publishers = append(sc.publishers, sc.redisRepo)
	}

	switch len(repos) {
	case 0:
		log.Warn().Msg("no database enabled, history is kept in memory only")
		sc.series = memory.NewSeriesRepo()
	case 1:
		sc.series = repos[0]
	default:
		sc.series = composite.New(repos...)
	}

	// OI 分量：redis（多实例共享）> sqlite > 内存
	switch {
	case sc.redisRepo != nil && sc.Config.Redis.Contributions:
		sc.contributions = sc.redisRepo
	case sc.sqliteRepo != nil:
		sc.contributions = sqliterepo.NewContributionRepo(sc.sqliteRepo.GetDB())
	default:
		sc.contributions = memory.NewContributionStore()
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second

	sc.redisRepo = redisrepo.New(
		rdb,
		sc.Config.Redis.Prefix,
		ttl,
		sc.Config.Redis.Stream,
		sc.Config.Redis.Channel,
	)

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return sc.redisRepo.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Bool("contributions", sc.Config.Redis.Contributions).
		Msg("✓ Redis initialized")

	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.SQLite.Path).
		Msg("✓ SQLite initialized")

	return nil
}

// initPostgres 初始化 Postgres 连接
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// buildVenues 通过注册表为每个启用的交易所创建数据源
func buildVenues(cfg *config.Config) []*exchange.Venue {
	opts := exchange.Options{BookLimit: cfg.Orderbook.Limit, Timeout: cfg.RequestTimeout()}
	var venues []*exchange.Venue
	for _, name := range cfg.GetEnabledExchanges() {
		factory, ok := exchange.Get(name)
		if !ok {
			log.Warn().Str("exchange", name).Strs("known", exchange.Registered()).Msg("unknown exchange, skipping")
			continue
		}
		v := factory(cfg.Exchanges[name], opts)
		if v == nil {
			log.Warn().Str("exchange", name).Msg("venue factory returned nothing")
			continue
		}
		log.Info().
			Str("exchange", name).
			Bool("book", v.Book != nil).
			Bool("balances", v.Balances != nil).
			Bool("history", v.History != nil).
			Bool("liq_feed", v.LiqFeed != nil).
			Bool("liq_rest", v.LiqSource != nil).
			Msg("✓ Venue initialized")
		venues = append(venues, v)
	}
	return venues
}

func (sc *ServiceContext) derivs() []port.SourceAdapter {
	var out []port.SourceAdapter
	for _, v := range sc.venues {
		if v.Derivs != nil {
			out = append(out, v.Derivs)
		}
	}
	return out
}

func (sc *ServiceContext) books() []port.BookSource {
	var out []port.BookSource
	for _, v := range sc.venues {
		if v.Book != nil {
			out = append(out, v.Book)
		}
	}
	return out
}

func (sc *ServiceContext) balances() []port.SourceAdapter {
	var out []port.SourceAdapter
	for _, v := range sc.venues {
		if v.Balances != nil {
			out = append(out, v.Balances)
		}
	}
	return out
}

func (sc *ServiceContext) history() []port.HistorySource {
	var out []port.HistorySource
	for _, v := range sc.venues {
		if v.History != nil {
			out = append(out, v.History)
		}
	}
	return out
}

func (sc *ServiceContext) liqFeeds() []port.LiquidationFeed {
	var out []port.LiquidationFeed
	for _, v := range sc.venues {
		if v.LiqFeed != nil {
			out = append(out, v.LiqFeed)
		}
	}
	return out
}

func (sc *ServiceContext) liqSources() []port.LiquidationSource {
	var out []port.LiquidationSource
	for _, v := range sc.venues {
		if v.LiqSource != nil {
			out = append(out, v.LiqSource)
		}
	}
	return out
}

// GetSeriesRepo 获取时间序列仓储
func (sc *ServiceContext) GetSeriesRepo() port.SeriesRepository {
	return sc.series
}

// BuildMonitorServiceDeps 构建 Monitor Service 所需的所有依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	cfg := sc.Config

	deps := monitor.ServiceDeps{
		Symbols:      cfg.Symbols.List,
		Derivs:       sc.derivs(),
		History:      sc.history(),
		Store:        sc.Store,
		Cache:        sc.Cache,
		Depth:        sc.Depth,
		Liquidations: sc.Liquidations,
		BookWeights:  cfg.Orderbook.Weights,
		Sink:         sc.Sink,

		RefreshEvery:       cfg.RefreshEvery(),
		PrintEvery:         time.Duration(cfg.App.PrintEveryMin) * time.Minute,
		HoldingsEvery:      time.Duration(cfg.Holdings.EveryMin) * time.Minute,
		PruneEvery:         time.Duration(cfg.Storage.PruneEveryHours) * time.Hour,
		Retention:          cfg.Retention(),
		CallTimeout:        cfg.RequestTimeout(),
		MaxParallelSymbols: cfg.App.MaxParallelSymbols,

		Backfill:       cfg.Storage.Backfill,
		BackfillWindow: time.Duration(cfg.Storage.BackfillHours) * time.Hour,
		BackfillStep:   time.Duration(cfg.Storage.BackfillStepMin) * time.Minute,
	}
	if len(sc.publishers) > 0 {
		deps.Publisher = sc.publishers
	}
	if sc.Liquidations != nil {
		deps.LiqFeeds = sc.liqFeeds()
	}
	if cfg.Holdings.Enabled {
		deps.Balances = sc.balances()
		deps.Onchain = sc.onchain
		deps.OnchainAssets = chain.Assets(*cfg)
	}
	return deps
}

// Close 关闭 ServiceContext 中的所有资源
// 应该在应用退出时调用
func (sc *ServiceContext) Close() error {
	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
