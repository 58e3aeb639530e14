package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelgate/internal/admission"
	"modelgate/internal/cache"
	"modelgate/internal/catalog"
	"modelgate/internal/config"
	"modelgate/internal/database"
	"modelgate/internal/dispatch"
	"modelgate/internal/personalize"
	"modelgate/internal/provider"
	"modelgate/internal/quota"
	"modelgate/internal/repository"
	"modelgate/internal/router"
	"modelgate/internal/scheduler"
	"modelgate/internal/service"
	"modelgate/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	gin.SetMode(gin.ReleaseMode)

	cfg := config.Load()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := database.Init(cfg.DBPath); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer database.Close()
	db := database.GetDB()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("模型目录加载失败: %v", err)
	}

	respCache, err := cache.New(cache.Options{MaxEntries: cfg.CacheMaxEntries, SweepEvery: cfg.CacheSweepEvery})
	if err != nil {
		log.Fatalf("缓存初始化失败: %v", err)
	}

	usageRepo := repository.NewUsageRepository(db)
	plans := quota.NewPlanResolver(repository.NewPlanRepository(db), cat, respCache)
	controller := admission.NewController(plans, usageRepo, admission.Config{
		GlobalDailyLimitUSD: cfg.GlobalDailyCostLimitUSD,
		SpikeMultiplier:     cfg.SpikeMultiplier,
	})
	engine := personalize.NewEngine(repository.NewPreferenceRepository(db), repository.NewFeedbackRepository(db), cat, respCache)

	adapters := provider.NewRegistry()
	for _, p := range []struct {
		name string
		key  string
		new  func() provider.Adapter
	}{
		{"openai", cfg.OpenAI.APIKey, func() provider.Adapter {
			return provider.NewOpenAI(provider.Config{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL})
		}},
		{"anthropic", cfg.Anthropic.APIKey, func() provider.Adapter {
			return provider.NewAnthropic(provider.Config{APIKey: cfg.Anthropic.APIKey, BaseURL: cfg.Anthropic.BaseURL})
		}},
		{"gemini", cfg.Gemini.APIKey, func() provider.Adapter {
			return provider.NewGemini(provider.Config{APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL})
		}},
	} {
		if p.key == "" {
			log.Warnf("%s: API key not set, provider disabled", p.name)
			continue
		}
		adapters.Register(p.new())
	}
	health := provider.NewHealthTracker(cfg.ProviderCooldown)

	writer := usage.NewWriter(usageRepo, usage.DefaultWriterConfig())
	alerts := usage.NewEvaluator(controller, usageRepo, plans, repository.NewAlertRepository(db))

	dispatchCfg := dispatch.DefaultConfig()
	dispatchCfg.RequestTimeout = cfg.RequestTimeout
	dispatcher := dispatch.New(cat, adapters, health, plans, dispatchCfg).
		WithRecommender(engine).
		WithUsageSink(writer)
	// 启动时完成首次探测，避免由首个请求承担
	dispatcher.ProbeAll(context.Background())

	gateway := service.NewGatewayService(controller, respCache, dispatcher, engine, alerts).WithUsageFlusher(writer)
	admin := service.NewAdminService(respCache, adapters, health, plans)

	sched, err := scheduler.New(scheduler.Config{
		ProbeSpec:      cfg.ProbeSchedule,
		AlertSweepSpec: cfg.AlertSweepSchedule,
		CacheSweepSpec: cfg.CacheSweepSchedule,
		ProbeTimeout:   dispatchCfg.ProbeTimeout,
	}, health, adapters, alerts, respCache)
	if err != nil {
		log.Fatalf("定时任务初始化失败: %v", err)
	}
	sched.Start()

	r := router.Setup(router.Options{
		Gateway:        gateway,
		Admin:          admin,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
	})

	port := cfg.ServerPort
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}
	srv := &http.Server{Addr: "0.0.0.0:" + port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("服务器启动在 http://0.0.0.0:%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	sched.Stop()
	gateway.Close()
	writer.Stop()
}
