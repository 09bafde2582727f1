package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Repository interface {
	UpsertVideo(ctx context.Context, v *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	RenameVideo(ctx context.Context, id, fileName string) error
	DeleteVideo(ctx context.Context, id string) error
	PruneVideos(ctx context.Context, keep []string) (int64, error)

	UpsertShort(ctx context.Context, s *Short) error
	GetShort(ctx context.Context, id string) (*Short, error)
	ListShorts(ctx context.Context, filter ShortFilter) ([]*Short, error)
	DeleteShort(ctx context.Context, id string) error
	SetShortLocalPath(ctx context.Context, id, path string) error

	SetCaption(ctx context.Context, shortID, text string) (*Caption, error)
	GetCaption(ctx context.Context, shortID string) (*Caption, error)
	CaptionsByVideo(ctx context.Context, videoID string) (map[string]*Caption, error)

	CreateRun(ctx context.Context, run *RunRecord) error
	FinishRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	AppendRunLogs(ctx context.Context, logs []RunLog) error
	RunLogs(ctx context.Context, runID string) ([]RunLog, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

var _ Repository = (*SQLiteRepository)(nil)

const videoColumns = `id, file_name, file_url, duration_seconds, width, height, aspect_ratio, file_size, status, created_at, synced_at`

func (r *SQLiteRepository) UpsertVideo(ctx context.Context, v *Video) error {
	if v.SyncedAt.IsZero() {
		v.SyncedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			file_url = excluded.file_url,
			duration_seconds = excluded.duration_seconds,
			width = excluded.width,
			height = excluded.height,
			aspect_ratio = excluded.aspect_ratio,
			file_size = excluded.file_size,
			status = excluded.status,
			created_at = excluded.created_at,
			synced_at = excluded.synced_at
	`, v.ID, v.FileName, v.FileURL, v.DurationSeconds, v.Width, v.Height, v.AspectRatio, v.FileSize, v.Status, v.CreatedAt, formatTime(v.SyncedAt))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (r *SQLiteRepository) RenameVideo(ctx context.Context, id, fileName string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE videos SET file_name = ? WHERE id = ?", fileName, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE shorts SET video_title = ? WHERE video_id = ?", fileName, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteVideo removes a video with its shorts and their captions.
func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM captions WHERE short_id IN (SELECT id FROM shorts WHERE video_id = ?)",
		"DELETE FROM shorts WHERE video_id = ?",
		"DELETE FROM videos WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PruneVideos deletes every local video whose id is not in keep.
func (r *SQLiteRepository) PruneVideos(ctx context.Context, keep []string) (int64, error) {
	local, err := r.ListVideos(ctx)
	if err != nil {
		return 0, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	var removed int64
	for _, v := range local {
		if keepSet[v.ID] {
			continue
		}
		if err := r.DeleteVideo(ctx, v.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

const shortColumns = `id, video_id, video_title, file_url, cover_url, start_second, end_second, duration_seconds, status, created_at, local_path, synced_at`

// UpsertShort stores the backend fields of s. A previously recorded
// local_path is kept.
func (r *SQLiteRepository) UpsertShort(ctx context.Context, s *Short) error {
	if s.SyncedAt.IsZero() {
		s.SyncedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shorts (`+shortColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			video_title = excluded.video_title,
			file_url = excluded.file_url,
			cover_url = excluded.cover_url,
			start_second = excluded.start_second,
			end_second = excluded.end_second,
			duration_seconds = excluded.duration_seconds,
			status = excluded.status,
			created_at = excluded.created_at,
			synced_at = excluded.synced_at
	`, s.ID, s.VideoID, s.VideoTitle, s.FileURL, s.CoverURL, s.StartSecond, s.EndSecond, s.DurationSeconds,
		s.Status, s.CreatedAt, s.LocalPath, formatTime(s.SyncedAt))
	return err
}

func (r *SQLiteRepository) GetShort(ctx context.Context, id string) (*Short, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shortColumns+` FROM shorts WHERE id = ?`, id)
	s, err := scanShort(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListShorts returns shorts matching filter. Shorts of one video come back in
// segment order; otherwise newest first.
func (r *SQLiteRepository) ListShorts(ctx context.Context, filter ShortFilter) ([]*Short, error) {
	var (
		where []string
		args  []any
	)
	if status := filter.StatusValue(); status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, "instr(lower(video_title), lower(?)) > 0")
		args = append(args, q)
	}
	order := "created_at DESC, id DESC"
	if filter.VideoID != "" {
		where = append(where, "video_id = ?")
		args = append(args, filter.VideoID)
		order = "start_second ASC, id ASC"
	}

	query := `SELECT ` + shortColumns + ` FROM shorts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shorts []*Short
	for rows.Next() {
		s, err := scanShort(rows)
		if err != nil {
			return nil, err
		}
		shorts = append(shorts, s)
	}
	return shorts, rows.Err()
}

func (r *SQLiteRepository) DeleteShort(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM captions WHERE short_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM shorts WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) SetShortLocalPath(ctx context.Context, id, path string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE shorts SET local_path = ? WHERE id = ?", path, id)
	return err
}

func (r *SQLiteRepository) SetCaption(ctx context.Context, shortID, text string) (*Caption, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO captions (short_id, text, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(short_id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at
	`, shortID, text, formatTime(now))
	if err != nil {
		return nil, err
	}
	return &Caption{ShortID: shortID, Text: text, UpdatedAt: now.Truncate(time.Second)}, nil
}

func (r *SQLiteRepository) GetCaption(ctx context.Context, shortID string) (*Caption, error) {
	var c Caption
	var updatedAt string
	err := r.db.QueryRowContext(ctx, "SELECT short_id, text, updated_at FROM captions WHERE short_id = ?", shortID).
		Scan(&c.ShortID, &c.Text, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// CaptionsByVideo returns the captions of a video's shorts keyed by short id.
func (r *SQLiteRepository) CaptionsByVideo(ctx context.Context, videoID string) (map[string]*Caption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.short_id, c.text, c.updated_at
		FROM captions c JOIN shorts s ON s.id = c.short_id
		WHERE s.video_id = ?
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Caption)
	for rows.Next() {
		var c Caption
		var updatedAt string
		if err := rows.Scan(&c.ShortID, &c.Text, &updatedAt); err != nil {
			return nil, err
		}
		c.UpdatedAt = parseTime(updatedAt)
		out[c.ShortID] = &c
	}
	return out, rows.Err()
}

const runColumns = `id, file_name, video_id, status, reason, shorts_count, started_at, finished_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.FileName, run.VideoID, run.Status, run.Reason, run.ShortsCount,
		formatTime(run.StartedAt), nullTime(run.FinishedAt))
	return err
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, run *RunRecord) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET video_id = ?, status = ?, reason = ?, shorts_count = ?, finished_at = ?
		WHERE id = ?
	`, run.VideoID, run.Status, run.Reason, run.ShortsCount, nullTime(run.FinishedAt), run.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AppendRunLogs stores entries; an entry already stored under the same
// (run_id, seq) is left untouched.
func (r *SQLiteRepository) AppendRunLogs(ctx context.Context, logs []RunLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_logs (run_id, seq, level, message, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range logs {
		if _, err := stmt.ExecContext(ctx, l.RunID, l.Seq, l.Level, l.Message, formatTime(l.CreatedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) RunLogs(ctx context.Context, runID string) ([]RunLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, seq, level, message, created_at FROM run_logs WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		var createdAt string
		if err := rows.Scan(&l.RunID, &l.Seq, &l.Level, &l.Message, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(createdAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*Video, error) {
	var v Video
	var syncedAt string
	if err := row.Scan(&v.ID, &v.FileName, &v.FileURL, &v.DurationSeconds, &v.Width, &v.Height,
		&v.AspectRatio, &v.FileSize, &v.Status, &v.CreatedAt, &syncedAt); err != nil {
		return nil, err
	}
	v.SyncedAt = parseTime(syncedAt)
	return &v, nil
}

func scanShort(row scanner) (*Short, error) {
	var s Short
	var syncedAt string
	if err := row.Scan(&s.ID, &s.VideoID, &s.VideoTitle, &s.FileURL, &s.CoverURL, &s.StartSecond, &s.EndSecond,
		&s.DurationSeconds, &s.Status, &s.CreatedAt, &s.LocalPath, &syncedAt); err != nil {
		return nil, err
	}
	s.SyncedAt = parseTime(syncedAt)
	return &s, nil
}

func scanRun(row scanner) (*RunRecord, error) {
	var run RunRecord
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&run.ID, &run.FileName, &run.VideoID, &run.Status, &run.Reason, &run.ShortsCount,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid && finishedAt.String != "" {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime accepts RFC3339 and SQLite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
