package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"devplan/internal/aggregate"
	"devplan/internal/api/auth"
	"devplan/internal/api/middleware"
	"devplan/internal/config"
	"devplan/internal/gateway"
	"devplan/internal/gateway/diskstore"
	"devplan/internal/gateway/gormstore"
	"devplan/internal/gateway/memstore"
	"devplan/internal/gateway/supabase"
	"devplan/internal/model"
	"devplan/internal/pkg/cleanup"
	"devplan/internal/pkg/dedup"
	"devplan/internal/pkg/metrics"
	"devplan/internal/pkg/ratelimit"
	"devplan/internal/pkg/revoke"
	"devplan/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Version 由构建时 -ldflags 注入。
var Version = "dev"

// uploadURLPrefix 是本地存储文件对外暴露的路径前缀。
const uploadURLPrefix = "/uploads"

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有记录网关、对象存储、可选的 Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *gin.Engine
	gw       gateway.Gateway
	storage  gateway.ObjectStorage
	fallback gateway.ObjectStorage
	rdb      *redis.Client
	repos    *store.Repos
	auth     *auth.Handler
	guard    *middleware.Guard
	deduper  Deduper
	cleanup  *cleanup.Pool
	now      func() time.Time
	closers  []io.Closer
}

// Deduper 判断一次上传是否为短时间内的重复提交。
type Deduper interface {
	IsDuplicate(ctx context.Context, fingerprint string) (bool, error)
	Delete(ctx context.Context, fingerprint string) error
}

// Deps 是 Server 的外部依赖。NewServer 按配置构建，测试可直接注入。
type Deps struct {
	Gateway  gateway.Gateway
	Identity gateway.Identity
	Storage  gateway.ObjectStorage // 远端存储桶，可为 nil
	Fallback gateway.ObjectStorage // 本地存储，远端不可用时使用
	Redis    *redis.Client         // 可为 nil：限流退化为内存，去重与吊销关闭
	Clock    func() time.Time
	Closers  []io.Closer
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 按 gateway.backend 连接记录网关（Supabase / MySQL / 内存）
// 2. 按需连接 Redis
// 3. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll(deps.Closers)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = rdb
		deps.Closers = append(deps.Closers, rdb)
	}

	metrics.InitMetrics(Version, cfg.App.Env, cfg.Gateway.Backend)
	gin.SetMode(gin.ReleaseMode)
	srv, err := New(cfg, logger, deps)
	if err != nil {
		closeAll(deps.Closers)
		return nil, err
	}
	return srv, nil
}

// OpenBackend 构建记录网关、身份提供方与对象存储。
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Deps, error) {
	deps := Deps{Fallback: diskstore.New(cfg.Storage.UploadDir, uploadURLPrefix)}

	switch cfg.Gateway.Backend {
	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
			Logger:     logger,
		})
		if err != nil {
			return Deps{}, fmt.Errorf("init supabase: %w", err)
		}
		deps.Gateway = client
		deps.Identity = client.Identity()
		deps.Storage = client.Bucket(cfg.Supabase.Bucket)
	case config.BackendMySQL:
		st, err := gormstore.Open(cfg.MySQL.DSN, logger)
		if err != nil {
			return Deps{}, err
		}
		if err := st.AutoMigrate(ctx); err != nil {
			_ = st.Close()
			return Deps{}, err
		}
		deps.Gateway = st
		deps.Identity = st.Identity()
		deps.Closers = append(deps.Closers, st)
	case config.BackendMemory:
		mem := NewMemoryGateway()
		deps.Gateway = mem
		deps.Identity = mem.Identity()
	default:
		return Deps{}, fmt.Errorf("unknown gateway backend %q", cfg.Gateway.Backend)
	}
	return deps, nil
}

// NewMemoryGateway 创建带有业务唯一约束的内存网关。
func NewMemoryGateway() *memstore.Store {
	var opts []memstore.Option
	for table, keys := range model.UniqueKeys() {
		for _, cols := range keys {
			opts = append(opts, memstore.WithUnique(table, cols...))
		}
	}
	return memstore.New(opts...)
}

// New 用已经构建好的依赖组装 Server 并注册路由。
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	tokens, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTAlgorithm, cfg.TokenTTL(), auth.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	repos := store.NewRepos(deps.Gateway)

	var (
		limiter ratelimit.Limiter
		revoker auth.Revoker
		checker middleware.RevocationChecker
		deduper Deduper
	)
	if deps.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(deps.Redis, logger, "devplan:ratelimit:", cfg.App.LoginRateLimit, float64(cfg.App.LoginRateBurst))
		rs := revoke.New(deps.Redis)
		revoker, checker = rs, rs
		deduper = dedup.NewDeduplicator(deps.Redis, cfg.App.UploadDedupWindow)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.App.LoginRateLimit, cfg.App.LoginRateBurst)
	}

	pool := cleanup.New(logger, 2, 64)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   r,
		gw:       deps.Gateway,
		storage:  deps.Storage,
		fallback: deps.Fallback,
		rdb:      deps.Redis,
		repos:    repos,
		auth:     auth.NewHandler(deps.Identity, repos.Profiles, tokens, limiter, revoker, logger),
		guard:    middleware.NewGuard(tokens, checker, logger),
		deduper:  deduper,
		cleanup:  pool,
		now:      now,
		// 清理池最后加入、最先关闭，排空时后端仍可用
		closers: append(append([]io.Closer(nil), deps.Closers...), pool),
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 排空清理池并关闭数据库与缓存连接。
func (s *Server) Close() error {
	return closeAll(s.closers)
}

func closeAll(closers []io.Closer) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)
	if s.fallback != nil && s.cfg.Storage.UploadDir != "" {
		s.router.Static(uploadURLPrefix, s.cfg.Storage.UploadDir)
	}

	api := s.router.Group("/api")
	api.POST("/auth/register", s.auth.Register)
	api.POST("/auth/login", s.auth.Login)
	api.GET("/competencies", s.handleListCompetencies)
	// 旧客户端使用的路径
	api.GET("/competencias", s.handleListCompetencies)

	authed := api.Group("/")
	authed.Use(s.guard.Middleware())
	authed.GET("/auth/me", s.auth.Me)
	authed.POST("/auth/logout", s.auth.Logout)

	authed.GET("/config", s.handleGetConfig)
	authed.PUT("/config", s.handleUpdateConfig)

	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.GET("/tasks/:id/subtasks", s.handleListSubtasks)
	authed.POST("/tasks/:id/rollup", s.handleRollupTask)

	authed.POST("/monthly/plans", s.handleCreatePlan)
	authed.GET("/monthly/plans", s.handleListPlans)
	authed.GET("/monthly/plans/:id", s.handleGetPlan)
	authed.PUT("/monthly/plans/:id", s.handleUpdatePlan)
	authed.DELETE("/monthly/plans/:id", s.handleDeletePlan)
	authed.GET("/monthly/plans/:id/comparison", s.handlePlanComparison)
	authed.GET("/monthly/evolution", s.handleEvolution)
	authed.POST("/monthly/reviews", s.handleCreateReview)
	authed.GET("/monthly/reviews/:plan_id", s.handleGetReview)

	authed.POST("/weekly/logs", s.handleCreateWeeklyLog)
	authed.GET("/weekly/logs", s.handleListWeeklyLogs)
	authed.GET("/weekly/logs/:id", s.handleGetWeeklyLog)
	authed.PUT("/weekly/logs/:id", s.handleUpdateWeeklyLog)
	authed.DELETE("/weekly/logs/:id", s.handleDeleteWeeklyLog)

	authed.POST("/activities", s.handleCreateActivity)
	authed.GET("/activities", s.handleListActivities)
	authed.GET("/activities/:id", s.handleGetActivity)
	authed.PUT("/activities/:id", s.handleUpdateActivity)
	authed.DELETE("/activities/:id", s.handleDeleteActivity)

	authed.POST("/finance/records", s.handleCreateFinanceRecord)
	authed.GET("/finance/records", s.handleListFinanceRecords)
	authed.PUT("/finance/records/:id", s.handleUpdateFinanceRecord)
	authed.DELETE("/finance/records/:id", s.handleDeleteFinanceRecord)
	authed.POST("/finance/categories", s.handleCreateFinanceCategory)
	authed.GET("/finance/categories", s.handleListFinanceCategories)
	authed.DELETE("/finance/categories/:id", s.handleDeleteFinanceCategory)
	authed.GET("/finance/summary", s.handleFinanceSummary)

	authed.POST("/evidence/upload", s.handleUploadEvidence)
	authed.GET("/evidence", s.handleListEvidence)
	authed.DELETE("/evidence/:id", s.handleDeleteEvidence)
	authed.POST("/evidencias/upload", s.handleUploadEvidence)
	authed.GET("/evidencias", s.handleListEvidence)
	authed.DELETE("/evidencias/:id", s.handleDeleteEvidence)

	authed.GET("/dashboard/summary", s.handleDashboardSummary)
	authed.GET("/dashboard/tasks-by-day", s.handleTasksByDay)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.gw == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.gw.Ping(ctx); err != nil {
		s.logger.Warn("health: gateway ping failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("health: redis ping failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version, "backend": s.cfg.Gateway.Backend})
}

// respondError 把仓储层错误映射为 HTTP 状态码。
func (s *Server) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInvalidHierarchy):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, aggregate.ErrNotMacroTask):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error(op+" failed",
			slog.String("user_id", getUserID(c)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

func getUserID(c *gin.Context) string {
	return c.GetString(auth.ContextUserID)
}

// today 返回服务器时区下的当天日期。
func (s *Server) today() model.Date {
	return model.DateOf(s.now())
}

// queryDate 解析可选的日期查询参数。
func queryDate(c *gin.Context, name string) (model.Date, bool) {
	d, err := model.ParseDate(c.Query(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s: %v", name, err)})
		return model.Date{}, false
	}
	return d, true
}

// queryInt 解析可选的正整数查询参数，缺省时返回 def。
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return v, true
}
