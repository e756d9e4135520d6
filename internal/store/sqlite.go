package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ezhang/mail-console/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB

	// now is swappable in tests so reply-time resolution is
	// deterministic.
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Get retrieves the singleton configuration record, or nil when none
// has been saved yet.
func (s *SQLiteStore) Get(ctx context.Context) (*model.AutoReplyConfig, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM auto_reply_setting WHERE id = ?", model.AutoReplyConfigID,
	)

	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting auto-reply config: %w", err)
	}

	return cfg, nil
}

// Save upserts the singleton record per the attachment-only rule.
func (s *SQLiteStore) Save(
	ctx context.Context, req SaveRequest,
) (*model.AutoReplyConfig, error) {
	if req.AttachmentOnly() {
		return s.saveAttachment(ctx, req.AttachmentURL)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	replyTime, err := model.ResolveReplyTime(*req.ReplyTime, s.now())
	if err != nil {
		return nil, fmt.Errorf("resolving reply time: %w", err)
	}

	body := ""
	if req.Body != nil {
		body = *req.Body
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auto_reply_setting (
			id, subject, body, raw_body, mode, reply_time,
			is_using_latest_image, image_url, attachment_url,
			is_active, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject               = excluded.subject,
			body                  = excluded.body,
			raw_body              = excluded.raw_body,
			mode                  = excluded.mode,
			reply_time            = excluded.reply_time,
			is_using_latest_image = excluded.is_using_latest_image,
			image_url             = excluded.image_url,
			attachment_url        = excluded.attachment_url,
			is_active             = excluded.is_active,
			updated_at            = excluded.updated_at`,
		model.AutoReplyConfigID, *req.Subject, body, req.RawBody, *req.Mode,
		replyTime, boolToInt(*req.IsUsingLatestImage), req.ImageURL,
		req.AttachmentURL, boolToInt(*req.IsActive), s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting auto-reply config: %w", err)
	}

	return s.Get(ctx)
}

// saveAttachment updates only the attachment reference, creating a
// blank disarmed record when none exists yet.
func (s *SQLiteStore) saveAttachment(
	ctx context.Context, attachmentURL *string,
) (*model.AutoReplyConfig, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_reply_setting (id, attachment_url, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			attachment_url = excluded.attachment_url,
			updated_at     = excluded.updated_at`,
		model.AutoReplyConfigID, attachmentURL, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("updating attachment: %w", err)
	}

	return s.Get(ctx)
}

// DisarmIfActive clears is_active only where it is still set, so of two
// racing checkers exactly one observes the transition.
func (s *SQLiteStore) DisarmIfActive(ctx context.Context) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE auto_reply_setting
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1`,
		s.now().UTC(), model.AutoReplyConfigID,
	)
	if err != nil {
		return false, fmt.Errorf("disarming auto-reply config: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading disarm result: %w", err)
	}

	return affected > 0, nil
}

// scanConfig scans the configuration row.
func scanConfig(row *sqlx.Row) (*model.AutoReplyConfig, error) {
	var (
		cfg           model.AutoReplyConfig
		rawBody       sql.NullString
		mode          string
		usingImage    int
		imageURL      sql.NullString
		attachmentURL sql.NullString
		isActive      int
		updatedAt     time.Time
	)

	err := row.Scan(
		&cfg.ID, &cfg.Subject, &cfg.Body, &rawBody, &mode, &cfg.ReplyTime,
		&usingImage, &imageURL, &attachmentURL, &isActive, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.Mode = model.BodyMode(mode)
	cfg.IsUsingLatestImage = usingImage != 0
	cfg.IsActive = isActive != 0
	cfg.UpdatedAt = updatedAt

	if rawBody.Valid {
		cfg.RawBody = &rawBody.String
	}
	if imageURL.Valid {
		cfg.ImageURL = &imageURL.String
	}
	if attachmentURL.Valid {
		cfg.AttachmentURL = &attachmentURL.String
	}

	return &cfg, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
