package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/api/router"
	"talent-match-go/internal/config"
	"talent-match-go/internal/evaluator"
	"talent-match-go/internal/llm"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/ratelimit"
	"talent-match-go/internal/storage"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	appCoreLogger "talent-match-go/internal/logger"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

// @title Talent Match API
// @version 1.0
// @description 人岗匹配服务的API文档。
// @BasePath /api/v1
func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 深度评估用的LLM，没有API Key时跳过深度阶段，只跑粗排
	var deepEval matcher.BatchEvaluator
	var queryEmbedder matcher.QueryEmbedder
	if cfg.Aliyun.APIKey != "" {
		chatModel, err := llm.NewAliyunQwenChatModel(
			cfg.Aliyun.APIKey,
			cfg.DeepEvaluator.ModelName,
			cfg.Aliyun.APIURL,
			llm.WithTemperature(cfg.DeepEvaluator.Temperature),
			llm.WithMaxTokens(cfg.DeepEvaluator.MaxTokens),
		)
		if err != nil {
			glog.Fatalf("初始化LLM聊天模型失败: %v", err)
		}
		// LLM调用加QPM限流，避免批量匹配打爆上游配额
		limitedModel := ratelimit.NewRateLimitedLLMModel(chatModel, cfg.DeepEvaluator.QPM)
		glog.Infof("LLM聊天模型初始化成功, model: %s, qpm: %d", cfg.DeepEvaluator.ModelName, cfg.DeepEvaluator.QPM)

		var evaluatorLogger *log.Logger
		if cfg.Logger.Level == "debug" {
			evaluatorLogger = log.New(os.Stderr, "[DeepEvaluator] ", log.LstdFlags|log.Lshortfile)
		} else {
			evaluatorLogger = log.New(io.Discard, "", 0)
		}
		deepEval = evaluator.NewDeepEvaluator(limitedModel, &cfg.DeepEvaluator, evaluatorLogger)
		glog.Info("LLM深度评估器初始化成功")

		embedder, err := llm.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
		if err != nil {
			glog.Fatalf("初始化阿里云Embedder失败: %v", err)
		}
		queryEmbedder = embedder
		glog.Infof("阿里云Embedder初始化成功, model: %s", cfg.Aliyun.Embedding.Model)
	} else {
		glog.Warn("未配置Aliyun API Key，深度评估阶段将被跳过，仅输出粗排结果")
	}

	orchestratorOpts := []matcher.Option{
		matcher.WithResultCache(storageManager.Redis),
	}
	if queryEmbedder != nil {
		orchestratorOpts = append(orchestratorOpts, matcher.WithQueryEmbedder(queryEmbedder))
	}
	if storageManager.RabbitMQ != nil {
		orchestratorOpts = append(orchestratorOpts, matcher.WithEventPublisher(storageManager.RabbitMQ))
	}
	if storageManager.MinIO != nil {
		orchestratorOpts = append(orchestratorOpts, matcher.WithTextFetcher(storageManager.MinIO))
	}

	orchestrator := matcher.NewOrchestrator(
		storageManager.MySQL,
		storageManager.Qdrant,
		deepEval,
		&cfg.Match,
		orchestratorOpts...,
	)
	glog.Info("匹配编排器初始化成功")

	matchHandler := handler.NewMatchHandler(cfg, storageManager, orchestrator)
	glog.Info("MatchHandler初始化成功")

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, matchHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	level := zerolog.DebugLevel
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)

	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelDebug)

	log.Println("Logger initialized with Zerolog, writing to console and file:", logFilePath)
}
