package stockbtd

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stockbt/api"
	"stockbt/config"
	"stockbt/jobs"
	"stockbt/store"
)

func Run(args []string) int {
	flags := flag.NewFlagSet("stockbtd", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	var configPath string
	flags.StringVar(&configPath, "config", "", "配置文件路径(YAML格式)，默认优先使用 ./config.yaml")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		}
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg := config.Load(configPath)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Printf("[ERROR] 打开数据库失败: %v\n", err)
		return 1
	}
	defer st.Close()
	log.Printf("[STORE] 数据库: %s\n", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := jobs.NewManager(ctx, st, jobs.Options{
		Workers:        cfg.JobWorkers,
		QueueSize:      cfg.JobQueueSize,
		InitialCapital: cfg.InitialCapital,
		RiskFreeRate:   cfg.RiskFreeRate,
	})

	log.Println("=== 策略回测服务 (stockbt) ===")

	server := api.NewServer(st, manager, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	code := 0
	select {
	case <-sigChan:
	case err := <-errCh:
		if err != nil {
			log.Printf("[ERROR] HTTP服务启动失败: %v\n", err)
			code = 1
		}
	}

	log.Println("正在关闭服务...")
	if err := server.Shutdown(); err != nil {
		log.Printf("[WARN] HTTP服务关闭: %v\n", err)
	}
	cancel()
	manager.Close()
	log.Println("服务已关闭")
	return code
}
