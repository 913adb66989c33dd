// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 环境变量前缀，例如 DAILYHUG_SERVER_PORT 覆盖 server.port。
const envPrefix = "DAILYHUG"

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	CORS       CORSConfig       `mapstructure:"cors"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// CORSConfig 跨域配置。AllowOrigins 为空表示放行所有来源。
type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// LLMConfig 存储文本生成后端（text-generation-inference 兼容）的连接配置。
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	Probe   ProbeConfig   `mapstructure:"probe"`
}

// ProbeConfig 控制启动时对后端 /health 的探测。
type ProbeConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

// GenerationConfig 采样参数与并发限制。
type GenerationConfig struct {
	DoSample          bool          `mapstructure:"do_sample"`
	Temperature       float64       `mapstructure:"temperature"`
	TopK              int           `mapstructure:"top_k"`
	TopP              float64       `mapstructure:"top_p"`
	RepetitionPenalty float64       `mapstructure:"repetition_penalty"`
	MaxNewTokens      int           `mapstructure:"max_new_tokens"`
	MaxConcurrency    int64         `mapstructure:"max_concurrency"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ChatConfig 对话相关配置。
type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

// ArchiveConfig 对话归档配置。
type ArchiveConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TranscriptLimit int           `mapstructure:"transcript_limit"`
	TranscriptTTL   time.Duration `mapstructure:"transcript_ttl"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	SQL   SQLConfig   `mapstructure:"sql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// SQLConfig 存储关系型数据库的配置，Driver 取值 mysql 或 sqlite。
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时归档在进程内同步处理。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "")

	v.SetDefault("cors.allow_origins", []string{})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("llm.base_url", "http://localhost:8080")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "JaeJiMin/daily_hug")
	v.SetDefault("llm.timeout", 0)
	v.SetDefault("llm.probe.attempts", 30)
	v.SetDefault("llm.probe.interval", 2*time.Second)

	v.SetDefault("generation.do_sample", true)
	v.SetDefault("generation.temperature", 0.4)
	v.SetDefault("generation.top_k", 100)
	v.SetDefault("generation.top_p", 0.8)
	v.SetDefault("generation.repetition_penalty", 1.1)
	v.SetDefault("generation.max_new_tokens", 512)
	v.SetDefault("generation.max_concurrency", 1)
	v.SetDefault("generation.timeout", 120*time.Second)

	v.SetDefault("chat.history_limit", 6)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.transcript_limit", 20)
	v.SetDefault("archive.transcript_ttl", 7*24*time.Hour)

	v.SetDefault("database.sql.driver", "sqlite")
	v.SetDefault("database.sql.dsn", "daily_hug.db")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chat-exchanges")
	v.SetDefault("kafka.group_id", "daily-hug-archiver")
}

// Load 读取 YAML 配置文件并叠加环境变量。configPath 为空或文件不存在时只使用默认值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验取值范围。
func (c Config) Validate() error {
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat.history_limit 必须大于 0, 当前值 %d", c.Chat.HistoryLimit)
	}
	if c.Generation.MaxConcurrency <= 0 {
		return fmt.Errorf("generation.max_concurrency 必须大于 0, 当前值 %d", c.Generation.MaxConcurrency)
	}
	if c.Generation.MaxNewTokens <= 0 {
		return fmt.Errorf("generation.max_new_tokens 必须大于 0, 当前值 %d", c.Generation.MaxNewTokens)
	}
	switch c.Database.SQL.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("不支持的 database.sql.driver: %q", c.Database.SQL.Driver)
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
