package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// YAMLConfig YAML配置文件结构
type YAMLConfig struct {
	Server struct {
		Port         int     `yaml:"port"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
		RateBurst    int     `yaml:"rate_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Jobs struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"jobs"`

	Backtest struct {
		InitialCapital float64 `yaml:"initial_capital"`
		RiskFreeRate   float64 `yaml:"risk_free_rate"`
	} `yaml:"backtest"`
}

// Config 服务配置
type Config struct {
	// HTTP 服务端口
	Port int

	// SQLite 数据库路径
	DBPath string

	// 回测任务 worker 数量与队列长度
	JobWorkers   int
	JobQueueSize int

	// 默认初始资金
	InitialCapital float64

	// 无风险收益率(按笔计算 Sharpe 时使用)
	RiskFreeRate float64

	// 每个 IP 的限流
	RateLimitRPS float64
	RateBurst    int
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	Port:           19527,
	DBPath:         "./data/stockbt.db",
	JobWorkers:     2,
	JobQueueSize:   64,
	InitialCapital: 100000,
	RiskFreeRate:   0,
	RateLimitRPS:   20,
	RateBurst:      50,
}

// LoadFromFile 从YAML文件加载配置，未填写的项保留 base 中的值
func LoadFromFile(path string, base Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var yc YAMLConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config := base
	if yc.Server.Port > 0 {
		config.Port = yc.Server.Port
	}
	if yc.Server.RateLimitRPS > 0 {
		config.RateLimitRPS = yc.Server.RateLimitRPS
	}
	if yc.Server.RateBurst > 0 {
		config.RateBurst = yc.Server.RateBurst
	}
	if yc.Database.Path != "" {
		config.DBPath = yc.Database.Path
	}
	if yc.Jobs.Workers > 0 {
		config.JobWorkers = yc.Jobs.Workers
	}
	if yc.Jobs.QueueSize > 0 {
		config.JobQueueSize = yc.Jobs.QueueSize
	}
	if yc.Backtest.InitialCapital > 0 {
		config.InitialCapital = yc.Backtest.InitialCapital
	}
	if yc.Backtest.RiskFreeRate > 0 {
		config.RiskFreeRate = yc.Backtest.RiskFreeRate
	}
	return &config, nil
}

// Load 加载配置 (优先级: 环境变量 > 配置文件 > 默认值)
// .env 文件存在时先载入环境变量
func Load(configPath string) *Config {
	_ = godotenv.Load()

	config := DefaultConfig
	if configPath != "" {
		if cfg, err := LoadFromFile(configPath, config); err == nil {
			config = *cfg
		} else {
			log.Printf("[WARN] 无法加载配置文件 %s: %v", configPath, err)
		}
	}

	config.Port = getEnvInt("PORT", config.Port)
	config.DBPath = getEnv("DB_PATH", config.DBPath)
	config.JobWorkers = getEnvInt("JOB_WORKERS", config.JobWorkers)
	config.JobQueueSize = getEnvInt("JOB_QUEUE_SIZE", config.JobQueueSize)
	config.InitialCapital = getEnvFloat("INITIAL_CAPITAL", config.InitialCapital)
	config.RiskFreeRate = getEnvFloat("RISK_FREE_RATE", config.RiskFreeRate)
	config.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", config.RateLimitRPS)
	config.RateBurst = getEnvInt("RATE_LIMIT_BURST", config.RateBurst)

	return &config
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
