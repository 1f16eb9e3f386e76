package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/trusted-server/edge/internal/observability"
)

// AnalyticsService records the structured, non-blocking telemetry events of
// spec §4.7 ("a structured log... not state the edge depends on"). A nil or
// unreachable backing store must never fail the request path that triggered
// the event — every RecordX call logs its own error before returning it, and
// request-path callers only log a returned error.
type AnalyticsService interface {
	// RecordAuction records the outcome of one /auction call.
	RecordAuction(ctx context.Context, requestID, impID, winningProvider string, price float64, mediated bool, providerCount int) error
	// RecordAssetFetch records one completed asset-proxy fetch.
	RecordAssetFetch(ctx context.Context, requestID, host string, hops int, status int) error
	// RecordClick records one first-party click redirect.
	RecordClick(ctx context.Context, requestID, host string) error
	Close()
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// EventRecord mirrors a row in the events table.
type EventRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	EventType       string    `json:"event_type"`
	RequestID       string    `json:"request_id"`
	ImpID           string    `json:"imp_id,omitempty"`
	WinningProvider string    `json:"winning_provider,omitempty"`
	Price           float64   `json:"price,omitempty"`
	Mediated        bool      `json:"mediated,omitempty"`
	ProviderCount   int32     `json:"provider_count,omitempty"`
	Host            string    `json:"host,omitempty"`
	Hops            int32     `json:"hops,omitempty"`
	Status          int32     `json:"status,omitempty"`
}

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	driverName, err := otelsql.Register("clickhouse",
		otelsql.WithAttributes(
			attribute.String("db.system", "clickhouse"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	if err := conn.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS events (
       timestamp        DateTime,
       event_type       String,
       request_id       String,
       imp_id           String,
       winning_provider String,
       price            Float64,
       mediated         UInt8,
       provider_count   Int32,
       host             String,
       hops             Int32,
       status           Int32
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := conn.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("connected to clickhouse")
	return &Analytics{DB: conn, Metrics: metrics}, nil
}

// ErrUnavailable is returned (after being logged by the RecordX method that
// hit it) when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

func (a *Analytics) insert(ctx context.Context, ev EventRecord) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	stmt := `INSERT INTO events (timestamp, event_type, request_id, imp_id, winning_provider, price, mediated, provider_count, host, hops, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	mediated := uint8(0)
	if ev.Mediated {
		mediated = 1
	}
	_, err := a.DB.ExecContext(ctx, stmt, time.Now(), ev.EventType, ev.RequestID, ev.ImpID, ev.WinningProvider, ev.Price, mediated, ev.ProviderCount, ev.Host, ev.Hops, ev.Status)
	return err
}

// RecordAuction records the outcome of one /auction call.
func (a *Analytics) RecordAuction(ctx context.Context, requestID, impID, winningProvider string, price float64, mediated bool, providerCount int) error {
	err := a.insert(ctx, EventRecord{
		EventType:       "auction",
		RequestID:       requestID,
		ImpID:           impID,
		WinningProvider: winningProvider,
		Price:           price,
		Mediated:        mediated,
		ProviderCount:   int32(providerCount),
	})
	if err != nil {
		zap.L().Warn("record auction event failed", zap.Error(err), zap.String("request_id", requestID))
	}
	return err
}

// RecordAssetFetch records one completed asset-proxy fetch.
func (a *Analytics) RecordAssetFetch(ctx context.Context, requestID, host string, hops int, status int) error {
	err := a.insert(ctx, EventRecord{
		EventType: "asset_fetch",
		RequestID: requestID,
		Host:      host,
		Hops:      int32(hops),
		Status:    int32(status),
	})
	if err != nil {
		zap.L().Warn("record asset fetch event failed", zap.Error(err), zap.String("request_id", requestID))
	}
	return err
}

// RecordClick records one first-party click redirect.
func (a *Analytics) RecordClick(ctx context.Context, requestID, host string) error {
	err := a.insert(ctx, EventRecord{
		EventType: "click",
		RequestID: requestID,
		Host:      host,
	})
	if err != nil {
		zap.L().Warn("record click event failed", zap.Error(err), zap.String("request_id", requestID))
	}
	return err
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// GetEventsByRequestID returns all events for a given request ID ordered by timestamp.
func (a *Analytics) GetEventsByRequestID(id string) ([]EventRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_type, request_id, imp_id, winning_provider, price, mediated, provider_count, host, hops, status FROM events WHERE request_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(context.Background(), query, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		var mediated uint8
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.RequestID, &ev.ImpID, &ev.WinningProvider, &ev.Price, &mediated, &ev.ProviderCount, &ev.Host, &ev.Hops, &ev.Status); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Mediated = mediated != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
