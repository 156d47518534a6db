package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/catalog"
	"secure-file-share/internal/identity"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Postgres implements identity.Store and catalog.Store on the users, files
// and shares tables.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// shareInsertErr maps a failed share insert. The file row is locked by then,
// so a foreign key failure can only come from the receiver.
func shareInsertErr(err error) error {
	if isForeignKeyViolation(err) {
		return apperr.NotFound("Receiver user not found").WithCause(err)
	}
	return dbErr("failed inserting share", err)
}

func dbErr(msg string, err error) error {
	return apperr.StorageFailure(msg).WithCause(err)
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (identity.User, error) {
	now := p.now().Unix()
	u := identity.User{Username: username, CreatedAt: time.Unix(now, 0)}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id`,
		username, passwordHash, now,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.User{}, apperr.Conflict("Username already exists").WithCause(err)
		}
		return identity.User{}, dbErr("failed creating user", err)
	}
	return u, nil
}

func (p *Postgres) Credentials(ctx context.Context, username string) (identity.User, string, error) {
	var (
		u       identity.User
		hash    string
		created int64
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &hash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, "", apperr.NotFound("User not found")
		}
		return identity.User{}, "", dbErr("failed loading user", err)
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, hash, nil
}

func (p *Postgres) userWhere(ctx context.Context, where string, arg any) (identity.User, error) {
	var (
		u       identity.User
		created int64
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, apperr.NotFound("User not found")
		}
		return identity.User{}, dbErr("failed loading user", err)
	}
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (identity.User, error) {
	return p.userWhere(ctx, "id = $1", id)
}

func (p *Postgres) UserByName(ctx context.Context, username string) (identity.User, error) {
	return p.userWhere(ctx, "username = $1", username)
}

func (p *Postgres) ListUsers(ctx context.Context) ([]identity.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, username, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, dbErr("failed listing users", err)
	}
	defer rows.Close()

	users := []identity.User{}
	for rows.Next() {
		var (
			u       identity.User
			created int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &created); err != nil {
			return nil, dbErr("failed listing users", err)
		}
		u.CreatedAt = time.Unix(created, 0)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("failed listing users", err)
	}
	return users, nil
}

const fileColumns = `f.id, f.stored_filename, f.original_filename, f.sha256, f.uploader_id, fu.username, f.upload_timestamp`

const fileSelect = `SELECT ` + fileColumns + `
	FROM files f
	JOIN users fu ON fu.id = f.uploader_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner, dest *catalog.FileRecord, extra ...any) error {
	var created int64
	args := append([]any{
		&dest.ID, &dest.StoredName, &dest.OriginalName, &dest.Fingerprint,
		&dest.OwnerID, &dest.OwnerName, &created,
	}, extra...)
	if err := s.Scan(args...); err != nil {
		return err
	}
	dest.CreatedAt = time.Unix(created, 0)
	return nil
}

func (p *Postgres) InsertFile(ctx context.Context, nf catalog.NewFile) (catalog.FileRecord, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.FileRecord{}, dbErr("failed starting transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO files (stored_filename, original_filename, sha256, uploader_id, upload_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		nf.StoredName, nf.OriginalName, nf.Fingerprint, nf.OwnerID, p.now().Unix(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.FileRecord{}, apperr.Conflict("stored name already registered").WithCause(err)
		}
		return catalog.FileRecord{}, dbErr("failed inserting file", err)
	}

	var f catalog.FileRecord
	if err := scanFile(tx.QueryRowContext(ctx, fileSelect+` WHERE f.id = $1`, id), &f); err != nil {
		return catalog.FileRecord{}, dbErr("failed loading file", err)
	}
	if err := tx.Commit(); err != nil {
		return catalog.FileRecord{}, dbErr("failed committing file", err)
	}
	return f, nil
}

func (p *Postgres) fileWhere(ctx context.Context, where string, arg any, notFound string) (catalog.FileRecord, error) {
	var f catalog.FileRecord
	err := scanFile(p.db.QueryRowContext(ctx, fileSelect+` WHERE `+where, arg), &f)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.FileRecord{}, apperr.NotFound(notFound)
		}
		return catalog.FileRecord{}, dbErr("failed loading file", err)
	}
	return f, nil
}

func (p *Postgres) FileByID(ctx context.Context, id int64) (catalog.FileRecord, error) {
	return p.fileWhere(ctx, "f.id = $1", id, "File not found")
}

func (p *Postgres) FileByStoredName(ctx context.Context, storedName string) (catalog.FileRecord, error) {
	return p.fileWhere(ctx, "f.stored_filename = $1", storedName, "File not found in database")
}

const grantSelect = `SELECT ` + fileColumns + `,
	s.id, s.sender_id, su.username, s.receiver_id, ru.username, s.share_timestamp
	FROM shares s
	JOIN files f ON f.id = s.file_id
	JOIN users fu ON fu.id = f.uploader_id
	JOIN users su ON su.id = s.sender_id
	JOIN users ru ON ru.id = s.receiver_id`

func scanGrant(s scanner) (catalog.ShareGrant, error) {
	var (
		g       catalog.ShareGrant
		created int64
	)
	err := scanFile(s, &g.File, &g.ID, &g.SenderID, &g.SenderName, &g.ReceiverID, &g.ReceiverName, &created)
	if err != nil {
		return catalog.ShareGrant{}, err
	}
	g.CreatedAt = time.Unix(created, 0)
	return g, nil
}

// CreateGrant locks the file row, re-checks ownership and inserts the grant
// unless the (file, sender, receiver) constraint already holds a row.
func (p *Postgres) CreateGrant(ctx context.Context, fileID, senderID, receiverID int64) (catalog.ShareGrant, bool, error) {
	if senderID == receiverID {
		return catalog.ShareGrant{}, false, apperr.InvalidArgument("Cannot share a file with yourself")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.ShareGrant{}, false, dbErr("failed starting transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID int64
	err = tx.QueryRowContext(ctx, `SELECT uploader_id FROM files WHERE id = $1 FOR SHARE`, fileID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ShareGrant{}, false, apperr.NotFound("File not found")
		}
		return catalog.ShareGrant{}, false, dbErr("failed loading file", err)
	}
	if ownerID != senderID {
		return catalog.ShareGrant{}, false, apperr.Forbidden("You can only share files you have uploaded")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO shares (file_id, sender_id, receiver_id, share_timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT shares_unique_grant DO NOTHING`,
		fileID, senderID, receiverID, p.now().Unix(),
	)
	if err != nil {
		return catalog.ShareGrant{}, false, shareInsertErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return catalog.ShareGrant{}, false, dbErr("failed inserting share", err)
	}

	g, err := scanGrant(tx.QueryRowContext(ctx,
		grantSelect+` WHERE s.file_id = $1 AND s.sender_id = $2 AND s.receiver_id = $3`,
		fileID, senderID, receiverID,
	))
	if err != nil {
		return catalog.ShareGrant{}, false, dbErr("failed loading share", err)
	}
	if err := tx.Commit(); err != nil {
		return catalog.ShareGrant{}, false, dbErr("failed committing share", err)
	}
	return g, n == 1, nil
}

func (p *Postgres) HasGrant(ctx context.Context, fileID, receiverID int64) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM shares WHERE file_id = $1 AND receiver_id = $2)`,
		fileID, receiverID,
	).Scan(&exists)
	if err != nil {
		return false, dbErr("failed checking share", err)
	}
	return exists, nil
}

func (p *Postgres) FilesByOwner(ctx context.Context, ownerID int64) ([]catalog.FileRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		fileSelect+` WHERE f.uploader_id = $1 ORDER BY f.upload_timestamp, f.id`, ownerID)
	if err != nil {
		return nil, dbErr("failed listing files", err)
	}
	defer rows.Close()

	files := []catalog.FileRecord{}
	for rows.Next() {
		var f catalog.FileRecord
		if err := scanFile(rows, &f); err != nil {
			return nil, dbErr("failed listing files", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("failed listing files", err)
	}
	return files, nil
}

func (p *Postgres) GrantsByReceiver(ctx context.Context, receiverID int64) ([]catalog.ShareGrant, error) {
	rows, err := p.db.QueryContext(ctx,
		grantSelect+` WHERE s.receiver_id = $1 ORDER BY s.share_timestamp, s.id`, receiverID)
	if err != nil {
		return nil, dbErr("failed listing shares", err)
	}
	defer rows.Close()

	grants := []catalog.ShareGrant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, dbErr("failed listing shares", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("failed listing shares", err)
	}
	return grants, nil
}

// Check pings the database.
func (p *Postgres) Check(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
