package svc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mt5rtd/internal/application/port"
	"mt5rtd/internal/application/usecase/rtd"
	"mt5rtd/internal/infrastructure/config"
	"mt5rtd/internal/infrastructure/mt5"
	"mt5rtd/internal/infrastructure/storage/composite"
	pgrepo "mt5rtd/internal/infrastructure/storage/postgres"
	redisrepo "mt5rtd/internal/infrastructure/storage/redis"
	sqliterepo "mt5rtd/internal/infrastructure/storage/sqlite"
	"mt5rtd/internal/infrastructure/websocket"
	"mt5rtd/internal/interfaces/console"
	"mt5rtd/internal/interfaces/httpapi"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	session   *mt5.Client
	store     port.MetricsStore
	redisRepo *redisrepo.Repo
	hub       *websocket.Hub

	// 输出端口
	Publisher port.Publisher

	Worker *rtd.Worker
	HTTP   *httpapi.Server

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		session:     mt5.NewClient(cfg.MT5.BridgeURL, time.Duration(cfg.MT5.TimeoutSeconds)*time.Second),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：存储 -> 推送 -> worker -> HTTP
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		if !errors.Is(err, ErrNoStorage) {
			return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
		}
		log.Warn().Msg("no relational storage enabled, quotes will not be persisted")
	}

	if err := sc.initializePublishers(); err != nil {
		return err
	}

	sc.Worker = rtd.NewWorker(sc.BuildWorkerDeps())

	var ws http.HandlerFunc
	if sc.hub != nil {
		ws = sc.hub.ServeWS
	}
	sc.HTTP = httpapi.New(sc.Config.App.HTTPAddr, sc.Worker, ws)

	log.Info().Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化关系型存储 (Postgres 或 SQLite)
func (sc *ServiceContext) initializeStorage() error {
	switch {
	case sc.Config.Postgres.Enabled:
		repo, err := pgrepo.New(sc.Config.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres repo creation failed: %w", err)
		}
		sc.store = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("✓ Postgres initialized")

	case sc.Config.SQLite.Enabled:
		repo, err := sqliterepo.New(sc.Config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		sc.store = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", sc.Config.SQLite.Path).Msg("✓ SQLite initialized")

	default:
		return ErrNoStorage
	}
	return nil
}

// initializePublishers 组装推送端：redis、websocket hub，都未启用时退回控制台
func (sc *ServiceContext) initializePublishers() error {
	var pubs []port.Publisher

	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		pubs = append(pubs, sc.redisRepo)
	}

	if sc.Config.Websocket.Enabled {
		// hub 需要 worker 作为订阅控制器，先用延迟绑定
		sc.hub = websocket.NewHub(&lazyController{sc: sc})
		go sc.hub.Run(sc.Ctx)
		pubs = append(pubs, sc.hub)
		log.Info().Msg("✓ Websocket hub initialized")
	}

	if len(pubs) == 0 {
		pubs = append(pubs, console.NewSink())
	}
	sc.Publisher = composite.New(pubs...)
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

	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second
	sc.redisRepo = redisrepo.New(rdb, sc.Config.Redis.Prefix, ttl)

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")

	return nil
}

// BuildWorkerDeps 构建 rtd worker 所需的所有依赖
func (sc *ServiceContext) BuildWorkerDeps() rtd.Deps {
	c := sc.Config
	return rtd.Deps{
		Session: sc.session,
		Credentials: port.Credentials{
			Login:    c.MT5.Login,
			Password: c.MT5.Password,
			Server:   c.MT5.Server,
		},
		Store:                sc.store,
		Publisher:            sc.Publisher,
		Watchlist:            c.Symbols.List,
		PollInterval:         seconds(c.RTD.PollIntervalSeconds),
		RetryBackoff:         seconds(c.RTD.RetryDelaySeconds),
		MaxActivationRetries: c.RTD.MaxActivationRetries,
		SymbolTimeout:        seconds(c.RTD.SymbolTimeoutSeconds),
		StopTimeout:          seconds(c.RTD.StopTimeoutSeconds),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// GetRedisRepo 获取 Redis 仓储
func (sc *ServiceContext) GetRedisRepo() *redisrepo.Repo {
	return sc.redisRepo
}

// Store 获取关系型存储；未启用时返回 ErrNoStorage
func (sc *ServiceContext) Store() (port.MetricsStore, error) {
	if sc.store == nil {
		return nil, ErrNoStorage
	}
	return sc.store, nil
}

// Close 关闭 ServiceContext 中的所有资源
// 先停 worker（释放盘口订阅并断开终端），再按相反顺序关闭存储连接
func (sc *ServiceContext) Close() error {
	if sc.Worker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), seconds(sc.Config.RTD.StopTimeoutSeconds)+time.Second)
		if err := sc.Worker.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("error stopping rtd worker")
		}
		cancel()
	}

	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil

	return nil
}

// lazyController 在 worker 创建后才转发订阅指令
type lazyController struct {
	sc *ServiceContext
}

func (l *lazyController) Subscribe(room, symbol string) bool {
	return l.sc.Worker.Subscribe(room, symbol)
}

func (l *lazyController) Unsubscribe(room, symbol string) bool {
	return l.sc.Worker.Unsubscribe(room, symbol)
}

func (l *lazyController) SymbolsForRoom(room string) []string {
	return l.sc.Worker.SymbolsForRoom(room)
}
