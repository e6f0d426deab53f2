package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"

	"multimodal/pkg/database"
	"multimodal/pkg/domain"
	"multimodal/pkg/telemetry"
	"multimodal/services/transit-svc/internal/advisor"
)

// PostgresRepository PostgreSQL реализация
type PostgresRepository struct {
	db  database.DB
	now func() time.Time
}

// NewPostgresRepository создаёт новый репозиторий
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

const insertAnalysisQuery = `
		INSERT INTO analyses (
			id, session_id, origin, destination, network_version, generation,
			destroyed, locations, provider, status, advice_text, advice_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

const insertPathQuery = `
		INSERT INTO analysis_paths (
			analysis_id, position, location_sequence, mode_sequence,
			total_cost, total_time, total_environment
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

func (r *PostgresRepository) Save(ctx context.Context, rec *AnalysisRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Save")
	defer span.End()

	prepare(rec, r.now)
	adviceJSON, err := marshalAdvice(rec.Advice)
	if err != nil {
		return err
	}

	err = database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertAnalysisQuery,
			rec.ID,
			rec.SessionID,
			rec.Origin,
			rec.Destination,
			int64(rec.NetworkVersion),
			int64(rec.Generation),
			rec.Destroyed,
			rec.Locations(),
			rec.Provider,
			string(rec.Status),
			rec.Message,
			adviceJSON,
			rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert analysis: %w", err)
		}

		for i, p := range rec.Paths {
			_, err := tx.Exec(ctx, insertPathQuery,
				rec.ID,
				i,
				p.LocationSequence,
				modeStrings(p.ModeSequence),
				p.TotalCost,
				p.TotalTime,
				p.TotalEnvironment,
			)
			if err != nil {
				return fmt.Errorf("failed to insert analysis path %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	rec.PathCount = len(rec.Paths)
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*AnalysisRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Get")
	defer span.End()

	query := `
		SELECT
			id, session_id, origin, destination, network_version, generation,
			destroyed, provider, status, advice_text, advice_json, created_at
		FROM analyses
		WHERE id = $1
	`

	rec := &AnalysisRecord{}
	var (
		destroyed      pgtype.Array[string]
		networkVersion int64
		generation     int64
		status         string
		adviceJSON     []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Origin,
		&rec.Destination,
		&networkVersion,
		&generation,
		&destroyed,
		&rec.Provider,
		&status,
		&rec.Message,
		&adviceJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	rec.NetworkVersion = uint64(networkVersion)
	rec.Generation = uint64(generation)
	rec.Destroyed = nonNil(destroyed.Elements)
	rec.Status = Status(status)
	if rec.Advice, err = unmarshalAdvice(adviceJSON); err != nil {
		return nil, err
	}

	if rec.Paths, err = r.loadPaths(ctx, id); err != nil {
		return nil, err
	}
	rec.PathCount = len(rec.Paths)
	return rec, nil
}

func (r *PostgresRepository) loadPaths(ctx context.Context, id string) ([]domain.PathSummary, error) {
	query := `
		SELECT location_sequence, mode_sequence, total_cost, total_time, total_environment
		FROM analysis_paths
		WHERE analysis_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis paths: %w", err)
	}
	defer rows.Close()

	var paths []domain.PathSummary
	for rows.Next() {
		var (
			p         domain.PathSummary
			locations pgtype.Array[string]
			modes     pgtype.Array[string]
		)
		if err := rows.Scan(&locations, &modes, &p.TotalCost, &p.TotalTime, &p.TotalEnvironment); err != nil {
			return nil, fmt.Errorf("failed to scan analysis path: %w", err)
		}
		p.LocationSequence = locations.Elements
		p.ModeSequence = toModes(modes.Elements)
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return paths, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*AnalysisRecord, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.List")
	defer span.End()

	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	where, args := buildWhereClause(f)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM analyses a WHERE %s`, where)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT
			a.id, a.session_id, a.origin, a.destination, a.network_version, a.generation,
			a.destroyed, a.provider, a.status, a.advice_text, a.created_at,
			(SELECT COUNT(*) FROM analysis_paths p WHERE p.analysis_id = a.id)
		FROM analyses a
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []*AnalysisRecord
	for rows.Next() {
		rec := &AnalysisRecord{}
		var (
			destroyed      pgtype.Array[string]
			networkVersion int64
			generation     int64
			status         string
		)
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Origin,
			&rec.Destination,
			&networkVersion,
			&generation,
			&destroyed,
			&rec.Provider,
			&status,
			&rec.Message,
			&rec.CreatedAt,
			&rec.PathCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan analysis: %w", err)
		}
		rec.NetworkVersion = uint64(networkVersion)
		rec.Generation = uint64(generation)
		rec.Destroyed = nonNil(destroyed.Elements)
		rec.Status = Status(status)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return results, total, nil
}

func buildWhereClause(f Filter) (string, []any) {
	conditions := []string{"TRUE"}
	var args []any
	argNum := 1

	if f.Origin != "" {
		conditions = append(conditions, fmt.Sprintf("a.origin = $%d", argNum))
		args = append(args, f.Origin)
		argNum++
	}
	if f.Destination != "" {
		conditions = append(conditions, fmt.Sprintf("a.destination = $%d", argNum))
		args = append(args, f.Destination)
		argNum++
	}
	if f.Location != "" {
		conditions = append(conditions, fmt.Sprintf("a.locations @> $%d", argNum))
		args = append(args, pq.Array([]string{f.Location}))
	}

	return strings.Join(conditions, " AND "), args
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Delete")
	defer span.End()

	result, err := r.db.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

func marshalAdvice(a *advisor.Advice) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal advice: %w", err)
	}
	return raw, nil
}

func unmarshalAdvice(raw []byte) (*advisor.Advice, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a advisor.Advice
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode advice: %w", err)
	}
	return &a, nil
}

func modeStrings(modes []domain.Mode) []string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

func toModes(raw []string) []domain.Mode {
	out := make([]domain.Mode, len(raw))
	for i, m := range raw {
		out[i] = domain.Mode(m)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
