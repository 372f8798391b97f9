package api

import (
	"context"

	"tradehook/conf"
	"tradehook/internal/exchange"
	"tradehook/internal/handler/status"
	"tradehook/internal/handler/webhook"
	"tradehook/internal/ledger"
	"tradehook/internal/relay"
	"tradehook/internal/router"
	whverify "tradehook/internal/webhook"
	"tradehook/pkg/cache"
	"tradehook/pkg/db"
	"tradehook/pkg/logger"
)

// InitRouter 按配置组装账本、交易所客户端和处理链
// 返回的cleanup在服务shutdown时调用
func InitRouter(ctx context.Context) (Router, func(), error) {
	appCfg := conf.AppConfig

	store, cleanup, err := initLedger(ctx, appCfg)
	if err != nil {
		return nil, nil, err
	}

	ex, err := initExchange(appCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	verifier := whverify.NewVerifier(appCfg.Webhook)
	svc := relay.NewService(store, ex)

	wh := webhook.NewHandler(verifier, svc)
	sh := status.NewHandler(ex)

	return router.NewApiRouter(wh, sh), cleanup, nil
}

func initLedger(ctx context.Context, appCfg conf.Config) (ledger.Store, func(), error) {
	switch appCfg.Ledger.Backend {
	case "mysql":
		datasource := db.Init(db.Config{
			User:      appCfg.Db.Username,
			Password:  appCfg.Db.Password,
			Host:      appCfg.Db.Host,
			Port:      appCfg.Db.Port,
			DBName:    appCfg.Db.DbName,
			ParseTime: true,
		})
		store, err := ledger.NewGormStore(datasource, appCfg.Ledger.Retention)
		if err != nil {
			return nil, func() {}, err
		}
		cleanup := func() {
			if sqlDB, err := datasource.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return store, cleanup, nil

	case "redis":
		if err := cache.InitRedis(appCfg.Redis); err != nil {
			return nil, func() {}, err
		}
		store := ledger.NewRedisStore(cache.GetRedisClient(), appCfg.Ledger.Retention)
		return store, cache.CloseRedis, nil

	default:
		// 内存账本重启即清空，只有回放窗口内的重投会受影响
		logger.Warnf("ledger backend=memory, idempotency does not survive restart")
		store := ledger.NewMemoryStore(appCfg.Ledger.Retention)
		store.StartSweeper(ctx, appCfg.Ledger.SweepInterval)
		return store, func() {}, nil
	}
}

func initExchange(appCfg conf.Config) (exchange.Exchange, error) {
	if appCfg.Binance.DryRun {
		logger.Warnf("dry-run mode, orders will not reach the exchange")
		sim := exchange.NewSimulatedExchange()
		return sim, nil
	}
	return exchange.NewBinanceClient(appCfg.Binance)
}
