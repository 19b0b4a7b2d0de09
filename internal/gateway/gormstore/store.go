// Package gormstore implements the record gateway on a SQL database through GORM.
// It is the self-hosted alternative to the Supabase backend.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"devplan/internal/gateway"
	"devplan/internal/model"
	"devplan/internal/pkg/metrics"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// Store 是基于 GORM 的 Gateway 实现。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ gateway.Gateway = (*Store)(nil)

// Open 连接 MySQL。
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return New(db, logger), nil
}

// New 包装一个已有的 *gorm.DB（测试中使用 sqlmock）。
func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// DB 返回底层连接。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate 创建或更新全部业务表。
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(model.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Select 查询匹配的行。
func (s *Store) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	tx := s.scoped(ctx, table, q)
	for _, o := range q.Orders {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(dest).Error; err != nil {
		return s.wrap("select", table, err)
	}
	return nil
}

// Insert 插入一行。
func (s *Store) Insert(ctx context.Context, table string, row any) error {
	if err := s.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return s.wrap("insert", table, err)
	}
	return nil
}

// Update 在一条 UPDATE 语句中写入全部字段，然后读回更新后的行。
func (s *Store) Update(ctx context.Context, table string, q gateway.Query, fields map[string]any, dest any) error {
	if len(fields) == 0 {
		return s.Select(ctx, table, q, dest)
	}
	if err := s.scoped(ctx, table, q).Updates(fields).Error; err != nil {
		return s.wrap("update", table, err)
	}
	if dest == nil {
		return nil
	}
	return s.Select(ctx, table, q, dest)
}

// Delete 先读出匹配的行再删除，返回被删除的行。
func (s *Store) Delete(ctx context.Context, table string, q gateway.Query, dest any) error {
	if dest != nil {
		if err := s.Select(ctx, table, q, dest); err != nil {
			return err
		}
		if v := reflect.ValueOf(dest); v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Slice && v.Elem().Len() == 0 {
			return nil
		}
	}
	if err := s.scoped(ctx, table, q).Delete(map[string]any{}).Error; err != nil {
		return s.wrap("delete", table, err)
	}
	return nil
}

// Ping 检查数据库连接。
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.wrap("ping", "", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return s.wrap("ping", "", err)
	}
	return nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) scoped(ctx context.Context, table string, q gateway.Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Table(table)
	if exprs := whereExprs(q); len(exprs) > 0 {
		tx = tx.Clauses(clause.Where{Exprs: exprs})
	}
	return tx
}

func whereExprs(q gateway.Query) []clause.Expression {
	exprs := make([]clause.Expression, 0, len(q.Filters))
	for _, f := range q.Filters {
		col := clause.Column{Name: f.Column}
		switch f.Op {
		case gateway.OpEq:
			exprs = append(exprs, clause.Eq{Column: col, Value: f.Value})
		case gateway.OpNeq:
			exprs = append(exprs, clause.Neq{Column: col, Value: f.Value})
		case gateway.OpGt:
			exprs = append(exprs, clause.Gt{Column: col, Value: f.Value})
		case gateway.OpGte:
			exprs = append(exprs, clause.Gte{Column: col, Value: f.Value})
		case gateway.OpLt:
			exprs = append(exprs, clause.Lt{Column: col, Value: f.Value})
		case gateway.OpLte:
			exprs = append(exprs, clause.Lte{Column: col, Value: f.Value})
		case gateway.OpIsNull:
			exprs = append(exprs, clause.Eq{Column: col, Value: nil})
		}
	}
	return exprs
}

func (s *Store) wrap(op, table string, err error) error {
	metrics.GatewayErrorsTotal.WithLabelValues(op, table).Inc()
	status := http.StatusInternalServerError
	var myErr *mysqldriver.MySQLError
	if errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &myErr) && myErr.Number == 1062) {
		status = http.StatusConflict
	}
	s.logger.Warn("sql gateway error",
		slog.String("op", op),
		slog.String("table", table),
		slog.String("error", err.Error()),
	)
	return &gateway.StoreError{Op: op, Table: table, Status: status, Err: err}
}
