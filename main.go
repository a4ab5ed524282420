package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"astroarena/server"
)

// AstroArena 入口：启动 HTTP + WebSocket 服务，固定建好全部房间
func main() {
	var (
		addr    string
		cfgPath string
		logPath string
	)
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides config)")
	flag.StringVar(&cfgPath, "config", "", "path to YAML config file")
	flag.StringVar(&logPath, "log", "", "log file path (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logPath != "" {
		cfg.LogFile = logPath
	}

	// 使用第三方 zap 日志库写入滚动文件
	if err := server.InitLogger(cfg.LogFile); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	ctx := server.NewServerContext(cfg)
	ctx.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(ctx))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig(ctx))
	mux.HandleFunc("/metrics", server.HandleMetrics(ctx))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("AstroArena listening on %s (%d rooms)", cfg.Addr, cfg.Rooms)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）：先停上下文让各循环解除等待，再关 HTTP
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")
	ctx.Stop()
	_ = srv.Close()
}
