package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"multimodal/pkg/database"
	"multimodal/pkg/domain"
)

// sqliteTimeLayout фиксированной ширины, чтобы строки сортировались как время
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository хранит анализы в SQLite; пути и списки в JSON колонках
type SQLiteRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteRepository создаёт репозиторий поверх открытой базы
func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

type analysisRow struct {
	ID             string         `db:"id"`
	SessionID      string         `db:"session_id"`
	Origin         string         `db:"origin"`
	Destination    string         `db:"destination"`
	NetworkVersion int64          `db:"network_version"`
	Generation     int64          `db:"generation"`
	DestroyedJSON  string         `db:"destroyed_json"`
	LocationsJSON  string         `db:"locations_json"`
	Provider       string         `db:"provider"`
	Status         string         `db:"status"`
	AdviceText     string         `db:"advice_text"`
	AdviceJSON     sql.NullString `db:"advice_json"`
	PathsJSON      string         `db:"paths_json"`
	CreatedAt      string         `db:"created_at"`
}

func toRow(rec *AnalysisRecord) (*analysisRow, error) {
	destroyed, err := json.Marshal(rec.Destroyed)
	if err != nil {
		return nil, err
	}
	locations, err := json.Marshal(rec.Locations())
	if err != nil {
		return nil, err
	}
	paths := rec.Paths
	if paths == nil {
		paths = []domain.PathSummary{}
	}
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}
	advice, err := marshalAdvice(rec.Advice)
	if err != nil {
		return nil, err
	}

	return &analysisRow{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		Origin:         rec.Origin,
		Destination:    rec.Destination,
		NetworkVersion: int64(rec.NetworkVersion),
		Generation:     int64(rec.Generation),
		DestroyedJSON:  string(destroyed),
		LocationsJSON:  string(locations),
		Provider:       rec.Provider,
		Status:         string(rec.Status),
		AdviceText:     rec.Message,
		AdviceJSON:     sql.NullString{String: string(advice), Valid: advice != nil},
		PathsJSON:      string(pathsJSON),
		CreatedAt:      rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	}, nil
}

func (row *analysisRow) record(withPaths bool) (*AnalysisRecord, error) {
	rec := &AnalysisRecord{
		ID:             row.ID,
		SessionID:      row.SessionID,
		Origin:         row.Origin,
		Destination:    row.Destination,
		NetworkVersion: uint64(row.NetworkVersion),
		Generation:     uint64(row.Generation),
		Provider:       row.Provider,
		Status:         Status(row.Status),
		Message:        row.AdviceText,
	}

	var err error
	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, row.CreatedAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(row.DestroyedJSON), &rec.Destroyed); err != nil {
		return nil, fmt.Errorf("decode destroyed: %w", err)
	}
	var paths []domain.PathSummary
	if err := json.Unmarshal([]byte(row.PathsJSON), &paths); err != nil {
		return nil, fmt.Errorf("decode paths: %w", err)
	}
	rec.PathCount = len(paths)
	if withPaths {
		rec.Paths = paths
		if row.AdviceJSON.Valid {
			if rec.Advice, err = unmarshalAdvice([]byte(row.AdviceJSON.String)); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *AnalysisRecord) error {
	prepare(rec, r.now)
	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	err = database.WithSQLTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO analyses (
				id, session_id, origin, destination, network_version, generation,
				destroyed_json, locations_json, provider, status, advice_text,
				advice_json, paths_json, created_at
			) VALUES (
				:id, :session_id, :origin, :destination, :network_version, :generation,
				:destroyed_json, :locations_json, :provider, :status, :advice_text,
				:advice_json, :paths_json, :created_at
			)`, row)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	rec.PathCount = len(rec.Paths)
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*AnalysisRecord, error) {
	var row analysisRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM analyses WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return row.record(true)
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]*AnalysisRecord, int64, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	conditions := []string{"1 = 1"}
	var args []any
	if f.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, f.Origin)
	}
	if f.Destination != "" {
		conditions = append(conditions, "destination = ?")
		args = append(args, f.Destination)
	}
	if f.Location != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(analyses.locations_json) WHERE json_each.value = ?)")
		args = append(args, f.Location)
	}
	where := strings.Join(conditions, " AND ")

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM analyses WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	var rows []analysisRow
	query := `SELECT * FROM analyses WHERE ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}

	out := make([]*AnalysisRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record(false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if n == 0 {
		return ErrAnalysisNotFound
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
