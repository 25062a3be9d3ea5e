// Package store persists Resumly's state: user accounts, resumes, API key
// records, and per-key usage analytics. SQLite is the default backend;
// Postgres and MySQL are supported for multi-instance deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/resumly/resumly/internal/model"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

// Store manages Resumly's persistent state.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the given backend and runs migrations. Driver is one of
// "sqlite", "pgx" (Postgres), or "mysql". MySQL DSNs must include
// parseTime=true so DATETIME columns scan into time.Time.
func Open(driver, dsn string) (*Store, error) {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// NewStore opens the default SQLite backend under dataDir. Pass empty
// string for in-memory (used by tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "resumly.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open(DriverSQLite, dsn)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insertGetID runs a named INSERT and returns the generated row ID.
// Postgres has no LastInsertId, so the query grows a RETURNING clause there.
func (s *Store) insertGetID(ctx context.Context, query string, arg interface{}) (int64, error) {
	if s.driver == DriverPostgres {
		rows, err := s.db.NamedQueryContext(ctx, query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}

	result, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// ---------------------------------------------------------------------------
// User CRUD
// ---------------------------------------------------------------------------

// CreateUser inserts a new user account. The ID, CreatedAt, and UpdatedAt
// fields on user are populated after a successful insert.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const q = `INSERT INTO users (email, password_hash, name, is_active, created_at, updated_at)
		VALUES (:email, :password_hash, :name, :is_active, :created_at, :updated_at)`

	id, err := s.insertGetID(ctx, q, user)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.rebind("SELECT * FROM users WHERE email = ?"), email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// ListUsers returns all user accounts.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// HasAnyUser reports whether at least one account exists. Used for
// first-run detection to trigger the initial setup flow.
func (s *Store) HasAnyUser(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?"), now, now, id)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	return checkAffected(result, "update user last login")
}

// ---------------------------------------------------------------------------
// Resume CRUD
// ---------------------------------------------------------------------------

// resumeRow maps 1:1 to the resumes table; tags are stored as a JSON array.
type resumeRow struct {
	ID          int64     `db:"id"`
	OwnerID     int64     `db:"owner_id"`
	Slug        string    `db:"slug"`
	Title       string    `db:"title"`
	Role        string    `db:"role"`
	DisplayName string    `db:"display_name"`
	TagsJSON    string    `db:"tags_json"`
	Summary     string    `db:"summary"`
	Sections    string    `db:"sections"`
	IsPublished bool      `db:"is_published"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func resumeRowFromModel(r *model.Resume) (resumeRow, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return resumeRow{}, fmt.Errorf("marshal tags: %w", err)
	}
	sections := r.Sections
	if sections == "" {
		sections = "{}"
	}
	return resumeRow{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Slug:        r.Slug,
		Title:       r.Title,
		Role:        r.Role,
		DisplayName: r.DisplayName,
		TagsJSON:    string(tagsJSON),
		Summary:     r.Summary,
		Sections:    sections,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (r resumeRow) toModel() (model.Resume, error) {
	var tags []string
	if r.TagsJSON != "" {
		if err := json.Unmarshal([]byte(r.TagsJSON), &tags); err != nil {
			return model.Resume{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return model.Resume{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Slug:        r.Slug,
		Title:       r.Title,
		Role:        r.Role,
		DisplayName: r.DisplayName,
		Tags:        tags,
		Summary:     r.Summary,
		Sections:    r.Sections,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// CreateResume inserts a new resume. ID, CreatedAt, and UpdatedAt are
// populated after a successful insert.
func (s *Store) CreateResume(ctx context.Context, r *model.Resume) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	row, err := resumeRowFromModel(r)
	if err != nil {
		return err
	}

	const q = `INSERT INTO resumes
		(owner_id, slug, title, role, display_name, tags_json, summary, sections, is_published, created_at, updated_at)
		VALUES
		(:owner_id, :slug, :title, :role, :display_name, :tags_json, :summary, :sections, :is_published, :created_at, :updated_at)`

	id, err := s.insertGetID(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	r.ID = id
	return nil
}

// GetResume returns a resume by ID.
func (s *Store) GetResume(ctx context.Context, id int64) (*model.Resume, error) {
	var row resumeRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM resumes WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get resume: %w", err)
	}
	r, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetResumeBySlug returns a resume by its unique slug.
func (s *Store) GetResumeBySlug(ctx context.Context, slug string) (*model.Resume, error) {
	var row resumeRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM resumes WHERE slug = ?"), slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get resume by slug: %w", err)
	}
	r, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResumes returns all resumes owned by a user, newest first.
func (s *Store) ListResumes(ctx context.Context, ownerID int64) ([]model.Resume, error) {
	var rows []resumeRow
	q := s.rebind("SELECT * FROM resumes WHERE owner_id = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}

	resumes := make([]model.Resume, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		resumes = append(resumes, r)
	}
	return resumes, nil
}

// ListPublishedResumes returns every published resume, newest first. The
// MCP server in stdio mode serves the whole instance through this.
func (s *Store) ListPublishedResumes(ctx context.Context) ([]model.Resume, error) {
	var rows []resumeRow
	q := s.rebind("SELECT * FROM resumes WHERE is_published = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &rows, q, true); err != nil {
		return nil, fmt.Errorf("list published resumes: %w", err)
	}

	resumes := make([]model.Resume, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		resumes = append(resumes, r)
	}
	return resumes, nil
}

// UpdateResume updates an existing resume. UpdatedAt is refreshed
// automatically.
func (s *Store) UpdateResume(ctx context.Context, r *model.Resume) error {
	r.UpdatedAt = time.Now().UTC()
	row, err := resumeRowFromModel(r)
	if err != nil {
		return err
	}

	const q = `UPDATE resumes SET
		slug = :slug, title = :title, role = :role, display_name = :display_name,
		tags_json = :tags_json, summary = :summary, sections = :sections,
		is_published = :is_published, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update resume: %w", err)
	}
	return checkAffected(result, "update resume")
}

// UpdateResumeFields persists an auto-save snapshot: only the metadata
// columns the editor form touches. Returns ErrNotFound for unknown IDs.
func (s *Store) UpdateResumeFields(ctx context.Context, id int64, fields model.ResumeFields) error {
	tags := fields.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	q := s.rebind(`UPDATE resumes SET title = ?, role = ?, display_name = ?, tags_json = ?, updated_at = ?
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q,
		fields.Title, fields.Role, fields.DisplayName, string(tagsJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update resume fields: %w", err)
	}
	return checkAffected(result, "update resume fields")
}

// DeleteResume removes a resume by ID. Keys scoped to it are cascade
// deleted by the foreign key constraint.
func (s *Store) DeleteResume(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM resumes WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete resume: %w", err)
	}
	return checkAffected(result, "delete resume")
}

// ---------------------------------------------------------------------------
// API Key CRUD
// ---------------------------------------------------------------------------

// apiKeyRow maps 1:1 to the api_keys table. Permissions and the IP
// whitelist are stored as JSON arrays.
type apiKeyRow struct {
	ID               int64                `db:"id"`
	OwnerID          int64                `db:"owner_id"`
	Name             string               `db:"name"`
	KeyHash          string               `db:"key_hash"`
	KeyPrefix        string               `db:"key_prefix"`
	KeySuffix        string               `db:"key_suffix"`
	ResumeID         *int64               `db:"resume_id"`
	IsAdmin          bool                 `db:"is_admin"`
	PermissionsJSON  string               `db:"permissions_json"`
	ExpiresAt        *time.Time           `db:"expires_at"`
	MaxUses          *int64               `db:"max_uses"`
	RateLimit        int                  `db:"rate_limit"`
	IPWhitelistJSON  string               `db:"ip_whitelist_json"`
	UserAgentPattern string               `db:"user_agent_pattern"`
	RotationPolicy   model.RotationPolicy `db:"rotation_policy"`
	NextRotationAt   *time.Time           `db:"next_rotation_at"`
	KeyVersion       int                  `db:"key_version"`
	UseCount         int64                `db:"use_count"`
	UniqueIPs        int64                `db:"unique_ips"`
	FirstUsedAt      *time.Time           `db:"first_used_at"`
	LastUsedAt       *time.Time           `db:"last_used_at"`
	IsRevoked        bool                 `db:"is_revoked"`
	CreatedAt        time.Time            `db:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at"`
	ResumeTitle      *string              `db:"resume_title"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	ips := k.IPWhitelist
	if ips == nil {
		ips = []string{}
	}
	ipsJSON, err := json.Marshal(ips)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal ip whitelist: %w", err)
	}
	return apiKeyRow{
		ID:               k.ID,
		OwnerID:          k.OwnerID,
		Name:             k.Name,
		KeyHash:          k.KeyHash,
		KeyPrefix:        k.KeyPrefix,
		KeySuffix:        k.KeySuffix,
		ResumeID:         k.ResumeID,
		IsAdmin:          k.IsAdmin,
		PermissionsJSON:  string(permsJSON),
		ExpiresAt:        k.ExpiresAt,
		MaxUses:          k.MaxUses,
		RateLimit:        k.RateLimit,
		IPWhitelistJSON:  string(ipsJSON),
		UserAgentPattern: k.UserAgentPattern,
		RotationPolicy:   k.RotationPolicy,
		NextRotationAt:   k.NextRotationAt,
		KeyVersion:       k.KeyVersion,
		UseCount:         k.UseCount,
		UniqueIPs:        k.UniqueIPs,
		FirstUsedAt:      k.FirstUsedAt,
		LastUsedAt:       k.LastUsedAt,
		IsRevoked:        k.IsRevoked,
		CreatedAt:        k.CreatedAt,
		UpdatedAt:        k.UpdatedAt,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	var perms []string
	if r.PermissionsJSON != "" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	var ips []string
	if r.IPWhitelistJSON != "" {
		if err := json.Unmarshal([]byte(r.IPWhitelistJSON), &ips); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal ip whitelist: %w", err)
		}
	}
	k := model.APIKey{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		KeyHash:          r.KeyHash,
		KeyPrefix:        r.KeyPrefix,
		KeySuffix:        r.KeySuffix,
		ResumeID:         r.ResumeID,
		IsAdmin:          r.IsAdmin,
		Permissions:      perms,
		ExpiresAt:        r.ExpiresAt,
		MaxUses:          r.MaxUses,
		RateLimit:        r.RateLimit,
		IPWhitelist:      ips,
		UserAgentPattern: r.UserAgentPattern,
		RotationPolicy:   r.RotationPolicy,
		NextRotationAt:   r.NextRotationAt,
		KeyVersion:       r.KeyVersion,
		UseCount:         r.UseCount,
		UniqueIPs:        r.UniqueIPs,
		FirstUsedAt:      r.FirstUsedAt,
		LastUsedAt:       r.LastUsedAt,
		IsRevoked:        r.IsRevoked,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ResumeTitle != nil {
		k.ResumeTitle = *r.ResumeTitle
	}
	return k, nil
}

// CreateAPIKey inserts a new API key record. The key_hash must already be
// set (see keygen.Derive). ID, CreatedAt, and UpdatedAt are populated
// after insert.
func (s *Store) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	now := time.Now().UTC()
	k.CreatedAt = now
	k.UpdatedAt = now
	if k.KeyVersion == 0 {
		k.KeyVersion = 1
	}

	row, err := apiKeyRowFromModel(k)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(owner_id, name, key_hash, key_prefix, key_suffix, resume_id, is_admin, permissions_json,
		 expires_at, max_uses, rate_limit, ip_whitelist_json, user_agent_pattern,
		 rotation_policy, next_rotation_at, key_version, use_count, unique_ips,
		 is_revoked, created_at, updated_at)
		VALUES
		(:owner_id, :name, :key_hash, :key_prefix, :key_suffix, :resume_id, :is_admin, :permissions_json,
		 :expires_at, :max_uses, :rate_limit, :ip_whitelist_json, :user_agent_pattern,
		 :rotation_policy, :next_rotation_at, :key_version, :use_count, :unique_ips,
		 :is_revoked, :created_at, :updated_at)`

	id, err := s.insertGetID(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	k.ID = id
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.rebind("SELECT * FROM api_keys WHERE key_hash = ?"), hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	k, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListAPIKeys returns all keys owned by a user, newest first, each joined
// with the scoped resume's title for display. Neither the plaintext nor
// the full hash ever leaves the handler layer.
func (s *Store) ListAPIKeys(ctx context.Context, ownerID int64) ([]model.APIKey, error) {
	var rows []apiKeyRow
	q := s.rebind(`SELECT k.*, r.title AS resume_title
		FROM api_keys k
		LEFT JOIN resumes r ON r.id = k.resume_id
		WHERE k.owner_id = ?
		ORDER BY k.created_at DESC`)
	if err := s.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]model.APIKey, 0, len(rows))
	for _, row := range rows {
		k, err := row.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// UpdateAPIKey updates the mutable fields of an API key record. Secret
// material and usage counters are not touched; use RotateAPIKey and
// RecordKeyUsage for those.
func (s *Store) UpdateAPIKey(ctx context.Context, k *model.APIKey) error {
	k.UpdatedAt = time.Now().UTC()
	row, err := apiKeyRowFromModel(k)
	if err != nil {
		return err
	}

	const q = `UPDATE api_keys SET
		name = :name, resume_id = :resume_id, is_admin = :is_admin,
		permissions_json = :permissions_json, expires_at = :expires_at, max_uses = :max_uses,
		rate_limit = :rate_limit, ip_whitelist_json = :ip_whitelist_json,
		user_agent_pattern = :user_agent_pattern, rotation_policy = :rotation_policy,
		next_rotation_at = :next_rotation_at, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	return checkAffected(result, "update api key")
}

// RevokeAPIKey marks a key revoked. Revocation is irreversible and
// distinct from deletion: the record stays for audit.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE api_keys SET is_revoked = ?, updated_at = ? WHERE id = ?"), true, now, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return checkAffected(result, "revoke api key")
}

// DeleteAPIKey removes the record entirely. Usage rows are cascade
// deleted by the foreign key constraint.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return checkAffected(result, "delete api key")
}

// RotateAPIKey swaps a key's secret material in a single UPDATE: the new
// hash, prefix, and suffix replace the old ones, key_version increments,
// and the next rotation date is rescheduled. The old hash stops validating
// in the same statement the new one starts, so there is no window where
// both or neither secret works.
func (s *Store) RotateAPIKey(ctx context.Context, id int64, hash, prefix, suffix string, nextRotation *time.Time) error {
	now := time.Now().UTC()
	q := s.rebind(`UPDATE api_keys SET
		key_hash = ?, key_prefix = ?, key_suffix = ?,
		key_version = key_version + 1, next_rotation_at = ?, updated_at = ?
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q, hash, prefix, suffix, nextRotation, now, id)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}
	return checkAffected(result, "rotate api key")
}

// ---------------------------------------------------------------------------
// Usage analytics
// ---------------------------------------------------------------------------

// RecordKeyUsage logs one authenticated call and updates the key's usage
// counters: use_count, first/last used, and the distinct-IP count.
func (s *Store) RecordKeyUsage(ctx context.Context, u *model.KeyUsage) error {
	u.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insertQ := tx.Rebind(`INSERT INTO api_key_usage (key_id, operation, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertQ, u.KeyID, u.Operation, u.IP, u.UserAgent, u.CreatedAt); err != nil {
		return fmt.Errorf("insert key usage: %w", err)
	}

	updateQ := tx.Rebind(`UPDATE api_keys SET
		use_count = use_count + 1,
		first_used_at = COALESCE(first_used_at, ?),
		last_used_at = ?,
		unique_ips = (SELECT COUNT(DISTINCT ip) FROM api_key_usage WHERE key_id = ?)
		WHERE id = ?`)
	result, err := tx.ExecContext(ctx, updateQ, u.CreatedAt, u.CreatedAt, u.KeyID, u.KeyID)
	if err != nil {
		return fmt.Errorf("update key usage counters: %w", err)
	}
	if err := checkAffected(result, "update key usage counters"); err != nil {
		return err
	}

	return tx.Commit()
}

// ListKeyUsage returns the most recent usage rows for a key.
func (s *Store) ListKeyUsage(ctx context.Context, keyID int64, limit int) ([]model.KeyUsage, error) {
	if limit <= 0 {
		limit = 100
	}
	var usage []model.KeyUsage
	q := s.rebind("SELECT * FROM api_key_usage WHERE key_id = ? ORDER BY created_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &usage, q, keyID, limit); err != nil {
		return nil, fmt.Errorf("list key usage: %w", err)
	}
	return usage, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

func checkAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
