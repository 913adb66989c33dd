// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"daily-hug-go/internal/config"
	"daily-hug-go/internal/handler"
	"daily-hug-go/internal/pipeline"
	"daily-hug-go/internal/repository"
	"daily-hug-go/internal/router"
	"daily-hug-go/internal/service"
	"daily-hug-go/pkg/database"
	"daily-hug-go/pkg/kafka"
	"daily-hug-go/pkg/llm"
	"daily-hug-go/pkg/log"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("DAILYHUG_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化生成后端，并等待模型加载完成
	llmClient := llm.NewClient(cfg.LLM)
	if err := waitForBackend(llmClient, cfg.LLM.Probe); err != nil {
		log.Fatal("生成后端不可用", err)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 4. 可选的归档链路：SQL + Redis，Kafka 配置存在时异步消费
	var (
		publisher           service.Publisher
		conversationHandler *handler.ConversationHandler
		closers             []func() error
	)
	if cfg.Archive.Enabled {
		db, err := database.NewSQL(cfg.Database.SQL)
		if err != nil {
			log.Fatal("数据库初始化失败", err)
		}
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
		closers = append(closers, func() error { return database.Close(db) })

		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		closers = append(closers, rdb.Close)

		exchangeRepo := repository.NewExchangeRepository(db)
		conversationRepo := repository.NewConversationRepository(rdb, cfg.Archive.TranscriptLimit, cfg.Archive.TranscriptTTL)
		processor := pipeline.NewProcessor(exchangeRepo, conversationRepo)

		if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
			producer := kafka.NewProducer(cfg.Kafka)
			// 生产者先于存储关闭
			closers = append([]func() error{producer.Close}, closers...)
			publisher = producer

			consumer := kafka.NewConsumer(cfg.Kafka, processor, conversationRepo)
			go consumer.Run(rootCtx)
		} else {
			log.Info("未配置 Kafka，归档任务在进程内同步处理")
			publisher = processor
		}

		conversationHandler = handler.NewConversationHandler(service.NewConversationService(conversationRepo, exchangeRepo))
	}

	// 5. 初始化 Service 与 Handler
	chatService := service.NewChatService(llmClient, cfg.Generation, cfg.Chat, publisher)
	greetingService := service.NewGreetingService(nil)

	r := router.New(cfg, router.Handlers{
		Chat:         handler.NewChatHandler(chatService, greetingService),
		Stream:       handler.NewStreamHandler(chatService),
		Conversation: conversationHandler,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者，再依次关闭生产者和存储
	cancelRoot()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Errorf("释放资源失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// waitForBackend 在启动时探测 /health，直到成功或用完重试次数。
func waitForBackend(client llm.Client, probe config.ProbeConfig) error {
	if probe.Attempts <= 0 {
		return nil
	}
	var lastErr error
	for i := 1; i <= probe.Attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = client.Health(ctx)
		cancel()
		if lastErr == nil {
			log.Info("生成后端已就绪")
			return nil
		}
		log.Warnf("生成后端尚未就绪 (%d/%d): %v", i, probe.Attempts, lastErr)
		if i < probe.Attempts {
			time.Sleep(probe.Interval)
		}
	}
	return lastErr
}
