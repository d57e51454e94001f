package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 会话策略取值
const (
	SessionStrategyPerRequest = "per-request"
	SessionStrategyShared     = "shared"
)

// Config 应用配置
type Config struct {
	// 服务配置
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Host           string `yaml:"host"`
	HTTPServerPort string `yaml:"port"`
	GinMode        string `yaml:"gin_mode"`
	Debug          bool   `yaml:"debug"`
	LogLevel       string `yaml:"log_level"`
	StaticDir      string `yaml:"static_dir"`

	// 设备（ESP）配置
	APIBaseURL          string        `yaml:"api_base_url"`
	AuthorizationHeader string        `yaml:"authorization_header"`
	DeviceUserAgent     string        `yaml:"device_user_agent"`
	DeviceTimeout       time.Duration `yaml:"device_timeout"`

	// 会话与生命周期
	SessionStrategy string        `yaml:"session_strategy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		ServiceName:     "pc-power-mcp",
		ServiceVersion:  "1.0.0",
		Host:            "0.0.0.0",
		HTTPServerPort:  "3000",
		GinMode:         "release",
		LogLevel:        "info",
		StaticDir:       "public",
		DeviceUserAgent: "pc-power-app/1.0",
		DeviceTimeout:   10 * time.Second,
		SessionStrategy: SessionStrategyShared,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load 依次合并：默认值 → YAML文件 → .env → 进程环境变量
func Load() *Config {
	config := Default()

	if path := yamlPath(); path != "" {
		if err := config.mergeYAML(path); err != nil {
			logrus.WithError(err).Warnf("加载配置文件失败: %s", path)
		} else {
			logrus.Infof("成功加载配置文件: %s", path)
		}
	}

	// 尝试加载.env文件，godotenv不会覆盖已存在的环境变量
	envPaths := []string{
		"config/.env",
		".env",
	}

	loaded := false
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				logrus.Infof("成功加载.env文件: %s", path)
				loaded = true
				break
			}
		}
	}
	if !loaded {
		logrus.Debug("未找到.env文件，使用系统环境变量")
	}

	config.applyEnv()
	return config
}

func yamlPath() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	if _, err := os.Stat("config/pcpower.yaml"); err == nil {
		return "config/pcpower.yaml"
	}
	return ""
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.ServiceVersion = getEnv("SERVICE_VERSION", c.ServiceVersion)
	c.Host = getEnv("HOST", c.Host)
	// 优先使用HTTP_SERVER_PORT，兼容PORT
	c.HTTPServerPort = getEnv("HTTP_SERVER_PORT", getEnv("PORT", c.HTTPServerPort))
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)

	c.APIBaseURL = strings.TrimRight(getEnv("API_BASE_URL", c.APIBaseURL), "/")
	c.AuthorizationHeader = getEnv("AUTHORIZATION_HEADER", c.AuthorizationHeader)
	c.DeviceUserAgent = getEnv("DEVICE_USER_AGENT", c.DeviceUserAgent)
	c.DeviceTimeout = getEnvAsDuration("DEVICE_TIMEOUT", c.DeviceTimeout)

	c.SessionStrategy = getEnv("SESSION_STRATEGY", c.SessionStrategy)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate 检查启动必需的配置项
func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL 未配置"))
	}
	switch c.SessionStrategy {
	case SessionStrategyPerRequest, SessionStrategyShared:
	default:
		errs = append(errs, fmt.Errorf("未知的会话策略: %q", c.SessionStrategy))
	}
	if c.DeviceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("DEVICE_TIMEOUT 必须大于0: %v", c.DeviceTimeout))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT 必须大于0: %v", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.HTTPServerPort)
}

// LogrusLevel 解析日志级别，DEBUG=true 时强制为debug
func (c *Config) LogrusLevel() logrus.Level {
	if c.Debug {
		return logrus.DebugLevel
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	return fmt.Sprintf(
		"服务名称: %s, 版本: %s, 监听: %s, 调试模式: %v, 设备API: %s, 授权: %s, 设备超时: %v, 会话策略: %s",
		c.ServiceName, c.ServiceVersion, c.Addr(), c.Debug,
		c.APIBaseURL, maskString(c.AuthorizationHeader), c.DeviceTimeout, c.SessionStrategy,
	)
}

// 从环境变量获取字符串值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// 从环境变量获取布尔值
func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return defaultValue
}

// 从环境变量获取时间值
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return defaultValue
}

// 掩码字符串，用于日志输出安全
func maskString(input string) string {
	if len(input) <= 8 {
		return "***"
	}
	return input[:4] + "..." + input[len(input)-4:]
}
