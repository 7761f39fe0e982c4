package store

import (
	"context"
	_ "embed"
	"net/url"
	"strings"
	"time"

	"github.com/apexops/dashboard/internal/apperr"
	"github.com/apexops/dashboard/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

const (
	// migrationLockID is the advisory lock held while the schema is applied.
	// Value: "apexop" in ASCII hex.
	migrationLockID             = 0x617065786f70
	migrationLockReleaseTimeout = 5 * time.Second
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens and pings a pool for databaseURL.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}

	log.Info().Str("sslmode", sslMode(databaseURL)).Msg("database ssl mode")

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	log.Info().Int32("max_conns", poolCfg.MaxConns).Msg("database connected")
	return &Postgres{pool: pool, log: log}, nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		return "prefer (default)"
	}
	return mode
}

// Migrate applies the embedded schema while holding an advisory lock, so
// concurrent instances do not race on startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection for migration")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return errors.Wrap(err, "acquire migration lock")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			p.log.Error().Err(err).Msg("failed to release migration lock")
		}
	}()

	p.log.Info().Msg("applying database schema")
	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func storeErr(err error, msg string) error {
	return apperr.Internal(msg, errors.Wrap(err, msg))
}

const agentColumns = `id, name, model, status, gpu_id, cpu_utilization, requests_per_minute,
	last_activity, configuration, user_id, created_at, updated_at`

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	var status string
	err := row.Scan(&a.ID, &a.Name, &a.Model, &status, &a.GPUID, &a.CPUUtilization,
		&a.RequestsPerMinute, &a.LastActivity, &a.Configuration, &a.UserID, &a.CreatedAt, &a.UpdatedAt)
	a.Status = domain.AgentStatus(status)
	return a, err
}

func (p *Postgres) ListAgents(ctx context.Context, userID string) ([]domain.Agent, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents
		WHERE $1::text = '' OR user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storeErr(err, "list agents")
	}
	agents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Agent, error) {
		return scanAgent(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan agents")
	}
	return agents, nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	return p.getAgent(ctx, p.pool, id, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) getAgent(ctx context.Context, q querier, id, suffix string) (domain.Agent, error) {
	a, err := scanAgent(q.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, apperr.NotFound("agent %s not found", id)
	}
	if err != nil {
		return domain.Agent{}, storeErr(err, "get agent")
	}
	return a, nil
}

func (p *Postgres) CreateAgent(ctx context.Context, in domain.AgentInput) (domain.Agent, error) {
	if err := in.Validate(); err != nil {
		return domain.Agent{}, err
	}

	now := time.Now().UTC()
	a, err := scanAgent(p.pool.QueryRow(ctx, `INSERT INTO agents
		(id, name, model, status, gpu_id, cpu_utilization, requests_per_minute,
		 last_activity, configuration, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $8, $8)
		RETURNING `+agentColumns,
		uuid.NewString(), in.Name, in.Model, string(in.Status), in.GPUID, in.CPUUtilization,
		in.RequestsPerMinute, now, jsonObject(in.Configuration), in.UserID))
	if err != nil {
		return domain.Agent{}, storeErr(err, "create agent")
	}
	return a, nil
}

func (p *Postgres) UpdateAgent(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	if err := patch.Validate(); err != nil {
		return domain.Agent{}, err
	}

	var updated domain.Agent
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		a, err := p.getAgent(ctx, tx, id, " FOR UPDATE")
		if err != nil {
			return err
		}
		patch.Apply(&a, time.Now().UTC())

		updated, err = scanAgent(tx.QueryRow(ctx, `UPDATE agents SET
			name = $2, model = $3, status = $4, gpu_id = $5, cpu_utilization = $6,
			requests_per_minute = $7, configuration = $8, updated_at = $9
			WHERE id = $1 RETURNING `+agentColumns,
			a.ID, a.Name, a.Model, string(a.Status), a.GPUID, a.CPUUtilization,
			a.RequestsPerMinute, jsonObject(a.Configuration), a.UpdatedAt))
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.TypeNotFound) {
			return domain.Agent{}, err
		}
		return domain.Agent{}, storeErr(err, "update agent")
	}
	return updated, nil
}

func (p *Postgres) DeleteAgent(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return storeErr(err, "delete agent")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("agent %s not found", id)
	}
	return nil
}

const gpuColumns = `id, model, vram, price_per_hour, status, provider, region, specifications,
	created_at, updated_at`

func scanGPU(row pgx.Row) (domain.GPUResource, error) {
	var g domain.GPUResource
	var status string
	err := row.Scan(&g.ID, &g.Model, &g.VRAM, &g.PricePerHour, &status, &g.Provider, &g.Region,
		&g.Specifications, &g.CreatedAt, &g.UpdatedAt)
	g.Status = domain.GPUStatus(status)
	return g, err
}

func (p *Postgres) ListGPUResources(ctx context.Context, availableOnly bool) ([]domain.GPUResource, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+gpuColumns+` FROM gpu_resources
		WHERE NOT $1::boolean OR status = 'available' ORDER BY created_at, id`, availableOnly)
	if err != nil {
		return nil, storeErr(err, "list gpu resources")
	}
	gpus, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.GPUResource, error) {
		return scanGPU(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan gpu resources")
	}
	return gpus, nil
}

func (p *Postgres) GetGPUResource(ctx context.Context, id string) (domain.GPUResource, error) {
	g, err := scanGPU(p.pool.QueryRow(ctx, `SELECT `+gpuColumns+` FROM gpu_resources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GPUResource{}, apperr.NotFound("gpu resource %s not found", id)
	}
	if err != nil {
		return domain.GPUResource{}, storeErr(err, "get gpu resource")
	}
	return g, nil
}

func (p *Postgres) CreateGPUResource(ctx context.Context, in domain.GPUResourceInput) (domain.GPUResource, error) {
	if err := in.Validate(); err != nil {
		return domain.GPUResource{}, err
	}

	g, err := scanGPU(p.pool.QueryRow(ctx, `INSERT INTO gpu_resources
		(id, model, vram, price_per_hour, status, provider, region, specifications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+gpuColumns,
		uuid.NewString(), in.Model, in.VRAM, in.PricePerHour, string(in.Status), in.Provider,
		in.Region, jsonObject(in.Specifications), time.Now().UTC()))
	if err != nil {
		return domain.GPUResource{}, storeErr(err, "create gpu resource")
	}
	return g, nil
}

func (p *Postgres) UpdateGPUResourceStatus(ctx context.Context, id string, status domain.GPUStatus) (domain.GPUResource, error) {
	if !status.Valid() {
		return domain.GPUResource{}, apperr.Validation("invalid gpu status %q", status)
	}

	g, err := scanGPU(p.pool.QueryRow(ctx, `UPDATE gpu_resources SET status = $2, updated_at = $3
		WHERE id = $1 RETURNING `+gpuColumns, id, string(status), time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GPUResource{}, apperr.NotFound("gpu resource %s not found", id)
	}
	if err != nil {
		return domain.GPUResource{}, storeErr(err, "update gpu resource status")
	}
	return g, nil
}

const usageColumns = `id, agent_id, gpu_id, gpu_utilization, cpu_utilization, memory_usage, timestamp`

func scanUsage(row pgx.Row) (domain.ResourceUsage, error) {
	var u domain.ResourceUsage
	err := row.Scan(&u.ID, &u.AgentID, &u.GPUID, &u.GPUUtilization, &u.CPUUtilization, &u.MemoryUsage, &u.Timestamp)
	return u, err
}

func (p *Postgres) ListResourceUsage(ctx context.Context, agentID string, limit int) ([]domain.ResourceUsage, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+usageColumns+` FROM resource_usage
		WHERE $1::text = '' OR agent_id = $1 ORDER BY timestamp DESC LIMIT $2`, agentID, usageLimit(limit))
	if err != nil {
		return nil, storeErr(err, "list resource usage")
	}
	usage, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ResourceUsage, error) {
		return scanUsage(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan resource usage")
	}
	return usage, nil
}

func (p *Postgres) CreateResourceUsage(ctx context.Context, in domain.ResourceUsageInput) (domain.ResourceUsage, error) {
	if err := in.Validate(); err != nil {
		return domain.ResourceUsage{}, err
	}

	u, err := scanUsage(p.pool.QueryRow(ctx, `INSERT INTO resource_usage
		(id, agent_id, gpu_id, gpu_utilization, cpu_utilization, memory_usage, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+usageColumns,
		uuid.NewString(), in.AgentID, in.GPUID, in.GPUUtilization, in.CPUUtilization, in.MemoryUsage, time.Now().UTC()))
	if err != nil {
		return domain.ResourceUsage{}, storeErr(err, "create resource usage")
	}
	return u, nil
}

const costColumns = `id, user_id, period, gpu_rental_cost, api_usage_cost, infrastructure_cost,
	total_cost, date, created_at`

func scanCost(row pgx.Row) (domain.CostAnalytics, error) {
	var c domain.CostAnalytics
	var period string
	err := row.Scan(&c.ID, &c.UserID, &period, &c.GPURentalCost, &c.APIUsageCost, &c.InfrastructureCost,
		&c.TotalCost, &c.Date, &c.CreatedAt)
	c.Period = domain.Period(period)
	return c, err
}

func (p *Postgres) ListCostAnalytics(ctx context.Context, userID string, period domain.Period) ([]domain.CostAnalytics, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+costColumns+` FROM cost_analytics
		WHERE user_id = $1 AND ($2::text = '' OR period = $2) ORDER BY date, created_at`, userID, string(period))
	if err != nil {
		return nil, storeErr(err, "list cost analytics")
	}
	costs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CostAnalytics, error) {
		return scanCost(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan cost analytics")
	}
	return costs, nil
}

func (p *Postgres) CreateCostAnalytics(ctx context.Context, in domain.CostAnalyticsInput) (domain.CostAnalytics, error) {
	if err := in.Validate(); err != nil {
		return domain.CostAnalytics{}, err
	}

	c, err := scanCost(p.pool.QueryRow(ctx, `INSERT INTO cost_analytics
		(id, user_id, period, gpu_rental_cost, api_usage_cost, infrastructure_cost, total_cost, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+costColumns,
		uuid.NewString(), in.UserID, string(in.Period), in.GPURentalCost, in.APIUsageCost,
		in.InfrastructureCost, in.TotalCost, in.Date, time.Now().UTC()))
	if err != nil {
		return domain.CostAnalytics{}, storeErr(err, "create cost analytics")
	}
	return c, nil
}

const metricsColumns = `id, agent_id, avg_response_time, throughput, success_rate, error_rate, timestamp`

func scanMetrics(row pgx.Row) (domain.PerformanceMetrics, error) {
	var m domain.PerformanceMetrics
	err := row.Scan(&m.ID, &m.AgentID, &m.AvgResponseTime, &m.Throughput, &m.SuccessRate, &m.ErrorRate, &m.Timestamp)
	return m, err
}

func (p *Postgres) ListPerformanceMetrics(ctx context.Context, agentID string) ([]domain.PerformanceMetrics, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+metricsColumns+` FROM performance_metrics
		WHERE $1::text = '' OR agent_id = $1 ORDER BY timestamp`, agentID)
	if err != nil {
		return nil, storeErr(err, "list performance metrics")
	}
	metrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PerformanceMetrics, error) {
		return scanMetrics(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan performance metrics")
	}
	return metrics, nil
}

func (p *Postgres) CreatePerformanceMetrics(ctx context.Context, in domain.PerformanceMetricsInput) (domain.PerformanceMetrics, error) {
	if err := in.Validate(); err != nil {
		return domain.PerformanceMetrics{}, err
	}

	m, err := scanMetrics(p.pool.QueryRow(ctx, `INSERT INTO performance_metrics
		(id, agent_id, avg_response_time, throughput, success_rate, error_rate, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+metricsColumns,
		uuid.NewString(), in.AgentID, in.AvgResponseTime, in.Throughput, in.SuccessRate, in.ErrorRate, time.Now().UTC()))
	if err != nil {
		return domain.PerformanceMetrics{}, storeErr(err, "create performance metrics")
	}
	return m, nil
}

const alertColumns = `id, user_id, type, severity, title, message, is_read, metadata, created_at`

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	var typ, severity string
	err := row.Scan(&a.ID, &a.UserID, &typ, &severity, &a.Title, &a.Message, &a.IsRead, &a.Metadata, &a.CreatedAt)
	a.Type = domain.AlertType(typ)
	a.Severity = domain.Severity(severity)
	return a, err
}

func (p *Postgres) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storeErr(err, "list alerts")
	}
	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Alert, error) {
		return scanAlert(row)
	})
	if err != nil {
		return nil, storeErr(err, "scan alerts")
	}
	return alerts, nil
}

func (p *Postgres) CreateAlert(ctx context.Context, in domain.AlertInput) (domain.Alert, error) {
	if err := in.Validate(); err != nil {
		return domain.Alert{}, err
	}

	a, err := scanAlert(p.pool.QueryRow(ctx, `INSERT INTO alerts
		(id, user_id, type, severity, title, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+alertColumns,
		uuid.NewString(), in.UserID, string(in.Type), string(in.Severity), in.Title, in.Message,
		jsonObject(in.Metadata), time.Now().UTC()))
	if err != nil {
		return domain.Alert{}, storeErr(err, "create alert")
	}
	return a, nil
}

func (p *Postgres) MarkAlertRead(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE alerts SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return storeErr(err, "mark alert read")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("alert %s not found", id)
	}
	return nil
}
