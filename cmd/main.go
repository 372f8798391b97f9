package main

import (
	"context"
	"log"

	api "tradehook/cmd/tradehook"
	"tradehook/conf"
	"tradehook/internal/middleware"
	"tradehook/pkg/logger"
)

// 启动服务（监听webhook）

/*
测试

BODY='{"symbol":"BTCUSDT","side":"buy","order_type":"market","quantity":0.01,"nonce":"tv-20260901-001"}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
TS=$(date +%s)
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:8090/webhook \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -H "X-Timestamp: $TS" \
  -d "$BODY"

# 同一条再发一次，应返回首次的结果而不是重复下单
curl -X POST http://localhost:8090/webhook \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -H "X-Timestamp: $TS" \
  -d "$BODY"
*/

func main() {
	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srvRouter, cleanup, err := api.InitRouter(ctx)
	if err != nil {
		logger.Fatalf("init failed: %v", err)
	}

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(func() {
		cancel()
		cleanup()
		logger.Sync()
	})

	srv.Run(middleware.NewMiddleware(), srvRouter)
}
