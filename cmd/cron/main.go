package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-service/internal/biz"
	"payment-service/internal/conf"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

// reconcileBatchSize 单次对账扫描的订单上限
const reconcileBatchSize = 100

// CronApp Cron 应用结构
type CronApp struct {
	subscriptionUsecase *biz.SubscriptionUseCase
}

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/payment-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "payment-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 对账补偿扫描 - 每 5 分钟执行
	// 兜底订单已完成但订阅未落库的缺口
	_, err = cronScheduler.AddFunc("0 */5 * * * *", func() {
		logHelper.Info("[CRON] Starting payment reconcile sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		repaired, err := app.subscriptionUsecase.ReconcileUnappliedOrders(ctx, reconcileBatchSize)
		if err != nil {
			logHelper.Errorf("[CRON] Error reconciling orders: %v", err)
		} else {
			logHelper.Infof("[CRON] Reconcile sweep completed: repaired=%d", repaired)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add reconcile sweep job: %v", err)
	}

	// 订阅过期标记 - 每日 00:10 执行
	_, err = cronScheduler.AddFunc("0 10 0 * * *", func() {
		logHelper.Info("[CRON] Starting subscription expiry sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count, err := app.subscriptionUsecase.UpdateExpiredSubscriptions(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error updating expired subscriptions: %v", err)
		} else {
			logHelper.Infof("[CRON] Expiry sweep completed: expired=%d", count)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add expiry sweep job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Info("  - Payment reconcile sweep: Every 5 minutes")
	logHelper.Info("  - Subscription expiry sweep: Every day at 00:10")
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
