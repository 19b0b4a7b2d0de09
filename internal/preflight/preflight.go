// Package preflight verifies a deployment before the API is started.
//
// Checks never write rows: the gateway probe only selects a single row from
// each table and pings the bucket.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"devplan/internal/config"
	"devplan/internal/gateway"
	"devplan/internal/model"

	"github.com/redis/go-redis/v9"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Result describes one check.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Report collects results in execution order.
type Report struct {
	Results []Result
}

func (r *Report) pass(name, detail string) { r.add(name, StatusPass, detail) }
func (r *Report) warn(name, detail string) { r.add(name, StatusWarn, detail) }
func (r *Report) fail(name, detail string) { r.add(name, StatusFail, detail) }

func (r *Report) add(name string, status Status, detail string) {
	r.Results = append(r.Results, Result{Name: name, Status: status, Detail: detail})
}

// Merge appends other's results.
func (r *Report) Merge(other Report) {
	r.Results = append(r.Results, other.Results...)
}

// Failed reports whether any check failed. Warnings do not fail the run.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFail {
			return true
		}
	}
	return false
}

// Print writes one line per result followed by a summary line.
func (r Report) Print(w io.Writer) {
	var failed, warned int
	for _, res := range r.Results {
		switch res.Status {
		case StatusFail:
			failed++
		case StatusWarn:
			warned++
		}
		if res.Detail != "" {
			fmt.Fprintf(w, "[%s] %s: %s\n", res.Status, res.Name, res.Detail)
		} else {
			fmt.Fprintf(w, "[%s] %s\n", res.Status, res.Name)
		}
	}
	fmt.Fprintf(w, "%d checks, %d failed, %d warnings\n", len(r.Results), failed, warned)
}

// CheckEnv validates the resolved configuration: backend credentials, token
// settings, CORS and the local upload directory.
func CheckEnv(cfg *config.Config) Report {
	var r Report
	prod := cfg.IsProduction()

	switch cfg.Gateway.Backend {
	case config.BackendSupabase:
		requireValue(&r, "SUPABASE_URL", cfg.Supabase.URL)
		requireValue(&r, "SUPABASE_KEY", cfg.Supabase.AnonKey)
		requireValue(&r, "SUPABASE_BUCKET_NAME", cfg.Supabase.Bucket)
		if cfg.Supabase.ServiceKey == "" {
			r.warn("SUPABASE_SERVICE_KEY", "not set, row level security applies to every request")
		} else {
			r.pass("SUPABASE_SERVICE_KEY", "")
		}
	case config.BackendMySQL:
		requireValue(&r, "DB_DSN", cfg.MySQL.DSN)
	case config.BackendMemory:
		if prod {
			r.fail("GATEWAY_BACKEND", "memory backend loses all data on restart")
		} else {
			r.warn("GATEWAY_BACKEND", "memory backend is for local development only")
		}
	default:
		r.fail("GATEWAY_BACKEND", fmt.Sprintf("unknown backend %q", cfg.Gateway.Backend))
	}

	switch {
	case cfg.Security.JWTSecret == "":
		r.fail("SECRET_KEY", "not set")
	case cfg.Security.JWTSecret == config.DefaultJWTSecret && prod:
		r.fail("SECRET_KEY", "development default in production")
	case cfg.Security.JWTSecret == config.DefaultJWTSecret:
		r.warn("SECRET_KEY", "development default")
	case len(cfg.Security.JWTSecret) < 32:
		r.warn("SECRET_KEY", "shorter than 32 characters")
	default:
		r.pass("SECRET_KEY", "")
	}

	switch cfg.Security.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
		r.pass("ALGORITHM", cfg.Security.JWTAlgorithm)
	default:
		r.fail("ALGORITHM", fmt.Sprintf("unsupported %q", cfg.Security.JWTAlgorithm))
	}

	wildcard := false
	for _, origin := range cfg.App.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			wildcard = true
		}
	}
	switch {
	case wildcard && prod:
		r.fail("ALLOWED_ORIGINS", `"*" in production`)
	case len(cfg.App.AllowedOrigins) == 0:
		r.warn("ALLOWED_ORIGINS", "empty, browsers will be rejected")
	default:
		r.pass("ALLOWED_ORIGINS", strings.Join(cfg.App.AllowedOrigins, ","))
	}

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o755); err != nil {
		r.fail("UPLOAD_DIR", err.Error())
	} else {
		r.pass("UPLOAD_DIR", cfg.Storage.UploadDir)
	}
	return r
}

func requireValue(r *Report, name, value string) {
	if strings.TrimSpace(value) == "" {
		r.fail(name, "not set")
		return
	}
	r.pass(name, "")
}

// CheckGateway probes every table with a one-row select and pings the bucket.
// storage may be nil when the backend has no object storage.
func CheckGateway(ctx context.Context, gw gateway.Gateway, storage gateway.ObjectStorage) Report {
	var r Report
	if err := gw.Ping(ctx); err != nil {
		r.fail("gateway", err.Error())
		return r
	}
	r.pass("gateway", "")

	for _, table := range model.Tables() {
		var rows []map[string]any
		if err := gw.Select(ctx, table, gateway.Query{}.WithLimit(1), &rows); err != nil {
			r.fail("table "+table, err.Error())
			continue
		}
		r.pass("table "+table, "")
	}

	if storage == nil {
		r.warn("bucket", "no object storage, uploads use the local directory")
		return r
	}
	if err := storage.Ping(ctx); err != nil {
		r.fail("bucket", err.Error())
		return r
	}
	r.pass("bucket", "")
	return r
}

// CheckRedis pings the shared Redis used for rate limiting, upload dedup and
// token revocation. A nil client means Redis is disabled.
func CheckRedis(ctx context.Context, rdb redis.UniversalClient) Report {
	var r Report
	if rdb == nil {
		r.warn("redis", "disabled, login limits are per process and logout cannot revoke tokens")
		return r
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		r.fail("redis", err.Error())
		return r
	}
	r.pass("redis", "")
	return r
}
