package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 记录网关后端。
const (
	BackendSupabase = "supabase"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory" // 进程内存，仅用于本地开发
)

// DefaultJWTSecret 是开发环境占位密钥，preflight 会在生产环境拒绝它。
const DefaultJWTSecret = "dev_secret_change_me"

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Security SecurityConfig `json:"security"`
	Gateway  GatewayConfig  `json:"gateway"`
	Supabase SupabaseConfig `json:"supabase"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Storage  StorageConfig  `json:"storage"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env               string        `json:"env"`                 // 运行环境: local / development / production
	LogLevel          string        `json:"log_level"`           // 日志级别: debug / info / warn / error
	HTTPAddr          string        `json:"http_addr"`           // API 服务监听地址
	AllowedOrigins    []string      `json:"allowed_origins"`     // CORS 白名单，"*" 表示全部
	MaxUploadMB       int           `json:"max_upload_mb"`       // 上传文件大小上限（MB）
	DailyWindowDays   int           `json:"daily_window_days"`   // tasks-by-day 默认天数
	EvolutionMonths   int           `json:"evolution_months"`    // 能力演进默认月份数
	LoginRateLimit    float64       `json:"login_rate_limit"`    // 登录限流速率（次/秒）
	LoginRateBurst    int           `json:"login_rate_burst"`    // 登录限流桶容量
	UploadDedupWindow time.Duration `json:"upload_dedup_window"` // 重复上传判定窗口（如 "10m"）
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret       string `json:"jwt_secret"`        // JWT 签名密钥
	JWTAlgorithm    string `json:"jwt_algorithm"`     // HS256 / HS384 / HS512
	TokenTTLMinutes int    `json:"token_ttl_minutes"` // Token 有效期（分钟）
}

// GatewayConfig 选择记录网关后端。
type GatewayConfig struct {
	Backend string `json:"backend"` // supabase / mysql / memory
}

// SupabaseConfig 托管平台配置。
type SupabaseConfig struct {
	URL        string `json:"url"`
	AnonKey    string `json:"anon_key"`
	ServiceKey string `json:"service_key"`
	Bucket     string `json:"bucket"` // 佐证文件存储桶
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`  // 关闭时限流/去重/吊销退化为内存或不启用
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// StorageConfig 本地存储配置。
type StorageConfig struct {
	UploadDir string `json:"upload_dir"` // 对象存储不可用时的本地目录
}

// TokenTTL 返回 Token 有效期。
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.TokenTTLMinutes) * time.Minute
}

// MaxUploadBytes 返回上传大小上限（字节）。
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.App.MaxUploadMB) << 20
}

// IsProduction 是否为生产环境。
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.App.Env)
	return env == "production" || env == "prod"
}

// Load 从 JSON 文件加载配置。
//
// 它会先读取 .env（若存在），再尝试读取 configs/config.json，不存在则使用默认值。
// 环境变量始终优先。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	// .env 只补充未设置的变量，文件不存在不是错误
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:               "development",
			LogLevel:          "info",
			HTTPAddr:          ":8000",
			AllowedOrigins:    []string{"*"},
			MaxUploadMB:       10,
			DailyWindowDays:   7,
			EvolutionMonths:   6,
			LoginRateLimit:    1,
			LoginRateBurst:    5,
			UploadDedupWindow: 10 * time.Minute,
		},
		Security: SecurityConfig{
			JWTSecret:       DefaultJWTSecret,
			JWTAlgorithm:    "HS256",
			TokenTTLMinutes: 1440,
		},
		Gateway: GatewayConfig{
			Backend: BackendSupabase,
		},
		Supabase: SupabaseConfig{
			Bucket: "evidencias",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/devplan?parseTime=true&loc=UTC",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Storage: StorageConfig{
			UploadDir: "uploads",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if len(cfg.App.AllowedOrigins) == 0 {
		cfg.App.AllowedOrigins = defaults.App.AllowedOrigins
	}
	if cfg.App.MaxUploadMB <= 0 {
		cfg.App.MaxUploadMB = defaults.App.MaxUploadMB
	}
	if cfg.App.DailyWindowDays <= 0 {
		cfg.App.DailyWindowDays = defaults.App.DailyWindowDays
	}
	if cfg.App.EvolutionMonths <= 0 {
		cfg.App.EvolutionMonths = defaults.App.EvolutionMonths
	}
	if cfg.App.LoginRateLimit <= 0 {
		cfg.App.LoginRateLimit = defaults.App.LoginRateLimit
	}
	if cfg.App.LoginRateBurst <= 0 {
		cfg.App.LoginRateBurst = defaults.App.LoginRateBurst
	}
	if cfg.App.UploadDedupWindow <= 0 {
		cfg.App.UploadDedupWindow = defaults.App.UploadDedupWindow
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.JWTAlgorithm == "" {
		cfg.Security.JWTAlgorithm = defaults.Security.JWTAlgorithm
	}
	if cfg.Security.TokenTTLMinutes <= 0 {
		cfg.Security.TokenTTLMinutes = defaults.Security.TokenTTLMinutes
	}
	if cfg.Gateway.Backend == "" {
		cfg.Gateway.Backend = defaults.Gateway.Backend
	}
	if cfg.Supabase.Bucket == "" {
		cfg.Supabase.Bucket = defaults.Supabase.Bucket
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = defaults.Storage.UploadDir
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	// 密钥类变量统一经 viper 读取
	_ = viper.BindEnv("supabase_key", "SUPABASE_KEY")
	_ = viper.BindEnv("supabase_service_key", "SUPABASE_SERVICE_KEY")
	_ = viper.BindEnv("secret_key", "SECRET_KEY", "JWT_SECRET")
	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")

	if v := firstEnv("ENVIRONMENT", "APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.App.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.App.MaxUploadMB = i
		}
	}
	if v := os.Getenv("APP_DAILY_WINDOW_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.App.DailyWindowDays = i
		}
	}
	if v := os.Getenv("APP_EVOLUTION_MONTHS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.App.EvolutionMonths = i
		}
	}
	if v := os.Getenv("APP_LOGIN_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.App.LoginRateLimit = f
		}
	}
	if v := os.Getenv("APP_LOGIN_RATE_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.App.LoginRateBurst = i
		}
	}
	if v := os.Getenv("APP_UPLOAD_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.UploadDedupWindow = d
		}
	}

	if v := viper.GetString("secret_key"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("ALGORITHM"); v != "" {
		cfg.Security.JWTAlgorithm = strings.ToUpper(v)
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Security.TokenTTLMinutes = i
		}
	}

	if v := os.Getenv("GATEWAY_BACKEND"); v != "" {
		cfg.Gateway.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = strings.TrimRight(v, "/")
	}
	if v := viper.GetString("supabase_key"); v != "" {
		cfg.Supabase.AnonKey = v
	}
	if v := viper.GetString("supabase_service_key"); v != "" {
		cfg.Supabase.ServiceKey = v
	}
	if v := os.Getenv("SUPABASE_BUCKET_NAME"); v != "" {
		cfg.Supabase.Bucket = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Storage.UploadDir = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func hasAnyEnv(keys ...string) bool {
	return firstEnv(keys...) != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func defaultMySQLConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = "root"
	cfg.Net = "tcp"
	cfg.Addr = "localhost:3306"
	cfg.DBName = "devplan"
	cfg.ParseTime = true
	return cfg
}

func parseMySQLDSN(dsn string) *mysql.Config {
	if dsn == "" {
		return defaultMySQLConfig()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return defaultMySQLConfig()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		UploadDedupWindow string `json:"upload_dedup_window"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.UploadDedupWindow != "" {
		duration, err := time.ParseDuration(aux.UploadDedupWindow)
		if err != nil {
			return fmt.Errorf("invalid upload_dedup_window format: %w", err)
		}
		a.UploadDedupWindow = duration
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		UploadDedupWindow string `json:"upload_dedup_window"`
		*Alias
	}{
		UploadDedupWindow: a.UploadDedupWindow.String(),
		Alias:             (*Alias)(&a),
	})
}
