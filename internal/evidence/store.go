// Package evidence provides an HMAC-signed audit trail for anonymize and
// deanonymize calls.
//
// A Record holds only counts, entity type names and SHA-256 hashes. Raw text
// and mapping values are never written. Records are signed (HMAC-SHA256) and
// persisted in SQLite; the schema is managed by embedded goose migrations.
package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sentinelotel "github.com/sentinel-privacy/sentinel/internal/otel"
)

var tracer = sentinelotel.Tracer("github.com/sentinel-privacy/sentinel/internal/evidence")

// ErrNotFound is returned by Get and Verify for an unknown record ID.
var ErrNotFound = errors.New("audit record not found")

const auditTable = "audit_records"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Operations recorded in the audit trail.
const (
	OperationAnonymize   = "anonymize"
	OperationDeanonymize = "deanonymize"
)

// Store persists HMAC-signed audit records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// Record is one audit entry. It never contains request text.
type Record struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	TenantID         string    `json:"tenant_id"`
	Operation        string    `json:"operation"`
	EntityTypes      []string  `json:"entity_types"`
	EntityCount      int       `json:"entity_count"`
	PlaceholderCount int       `json:"placeholder_count"`
	Tier             int       `json:"tier"`
	InputHash        string    `json:"input_hash"`
	OutputHash       string    `json:"output_hash"`
	DurationMS       int64     `json:"duration_ms"`
	Error            string    `json:"error,omitempty"`
	Signature        string    `json:"signature"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	TenantID  string
	Operation string
	From      time.Time
	To        time.Time
	Limit     int
}

// NewStore opens (or creates) the SQLite database at dbPath, applies
// migrations and configures HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening evidence database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating evidence schema: %w", err)
	}

	return &Store{
		db:     db,
		signer: signer,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store signs rec and saves it. rec.Signature is set on success.
func (s *Store) Store(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "evidence.store",
		trace.WithAttributes(
			attribute.String("evidence.id", rec.ID),
			sentinelotel.SentinelTenant.String(rec.TenantID),
			sentinelotel.SentinelOperation.String(rec.Operation),
		))
	defer span.End()

	rec.Signature = ""
	unsigned, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	signature, err := s.signer.Sign(unsigned)
	if err != nil {
		return fmt.Errorf("signing audit record: %w", err)
	}
	rec.Signature = signature

	signed, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	query, args, err := buildInsertQuery(rec, string(signed))
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing audit record: %w", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.get",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	query, args, err := buildGetQuery(id)
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var recordJSON string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling audit record: %w", err)
	}

	return &rec, nil
}

// List returns records matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "evidence.list",
		trace.WithAttributes(
			sentinelotel.SentinelTenant.String(f.TenantID),
			sentinelotel.SentinelOperation.String(f.Operation),
		))
	defer span.End()

	query, args, err := buildListQuery(f)
	if err != nil {
		return nil, fmt.Errorf("building list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	results := make([]Record, 0)
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}

		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			continue
		}

		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	span.SetAttributes(attribute.Int("evidence.count", len(results)))
	return results, nil
}

// Count returns the number of stored records for tenantID, or all records
// when tenantID is empty.
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	b := psql.Select("COUNT(*)").From(auditTable)
	if tenantID != "" {
		b = b.Where(sq.Eq{"tenant_id": tenantID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit records: %w", err)
	}
	return n, nil
}

// Verify checks the HMAC signature of a stored record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "evidence.verify",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	valid, err := s.VerifyRecord(rec)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("evidence.valid", valid))
	return valid, nil
}

// VerifyRecord checks rec's signature without touching the database.
func (s *Store) VerifyRecord(rec *Record) (bool, error) {
	unsignedRec := *rec
	unsignedRec.Signature = ""

	unsigned, err := json.Marshal(&unsignedRec)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}

	return s.signer.Verify(unsigned, rec.Signature), nil
}

func buildInsertQuery(rec *Record, recordJSON string) (string, []any, error) {
	return psql.Insert(auditTable).
		Columns("id", "timestamp_ns", "tenant_id", "operation", "tier", "record_json", "signature").
		Values(rec.ID, rec.Timestamp.UnixNano(), rec.TenantID, rec.Operation, rec.Tier, recordJSON, rec.Signature).
		ToSql()
}

func buildGetQuery(id string) (string, []any, error) {
	return psql.Select("record_json").
		From(auditTable).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func buildListQuery(f Filter) (string, []any, error) {
	b := psql.Select("record_json").From(auditTable)
	if f.TenantID != "" {
		b = b.Where(sq.Eq{"tenant_id": f.TenantID})
	}
	if f.Operation != "" {
		b = b.Where(sq.Eq{"operation": f.Operation})
	}
	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"timestamp_ns": f.From.UnixNano()})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.LtOrEq{"timestamp_ns": f.To.UnixNano()})
	}
	b = b.OrderBy("timestamp_ns DESC", "id DESC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	return b.ToSql()
}
