package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	var migrations []string
	switch s.driver {
	case DriverPostgres:
		migrations = postgresMigrations
	case DriverMySQL:
		migrations = mysqlMigrations
	default:
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS resumes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		slug TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		tags_json TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '',
		sections TEXT NOT NULL DEFAULT '{}',
		is_published INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		key_suffix TEXT NOT NULL,
		resume_id INTEGER REFERENCES resumes(id) ON DELETE CASCADE,
		is_admin INTEGER NOT NULL DEFAULT 0,
		permissions_json TEXT NOT NULL DEFAULT '[]',
		expires_at DATETIME,
		max_uses INTEGER,
		rate_limit INTEGER NOT NULL DEFAULT 1000,
		ip_whitelist_json TEXT NOT NULL DEFAULT '[]',
		user_agent_pattern TEXT NOT NULL DEFAULT '',
		rotation_policy TEXT NOT NULL DEFAULT 'never',
		next_rotation_at DATETIME,
		key_version INTEGER NOT NULL DEFAULT 1,
		use_count INTEGER NOT NULL DEFAULT 0,
		unique_ips INTEGER NOT NULL DEFAULT 0,
		first_used_at DATETIME,
		last_used_at DATETIME,
		is_revoked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_id INTEGER NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		operation TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_api_key_usage_key ON api_key_usage(key_id)`,
	`CREATE INDEX IF NOT EXISTS idx_resumes_owner ON resumes(owner_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS resumes (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		slug TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		tags_json TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '',
		sections TEXT NOT NULL DEFAULT '{}',
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		key_suffix TEXT NOT NULL,
		resume_id BIGINT REFERENCES resumes(id) ON DELETE CASCADE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		permissions_json TEXT NOT NULL DEFAULT '[]',
		expires_at TIMESTAMPTZ,
		max_uses BIGINT,
		rate_limit INTEGER NOT NULL DEFAULT 1000,
		ip_whitelist_json TEXT NOT NULL DEFAULT '[]',
		user_agent_pattern TEXT NOT NULL DEFAULT '',
		rotation_policy TEXT NOT NULL DEFAULT 'never',
		next_rotation_at TIMESTAMPTZ,
		key_version INTEGER NOT NULL DEFAULT 1,
		use_count BIGINT NOT NULL DEFAULT 0,
		unique_ips BIGINT NOT NULL DEFAULT 0,
		first_used_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		key_id BIGINT NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		operation TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_api_key_usage_key ON api_key_usage(key_id)`,
	`CREATE INDEX IF NOT EXISTS idx_resumes_owner ON resumes(owner_id)`,
}

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at DATETIME(6),
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	)`,

	`CREATE TABLE IF NOT EXISTS resumes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		slug VARCHAR(255) UNIQUE NOT NULL,
		title VARCHAR(512) NOT NULL DEFAULT '',
		role VARCHAR(255) NOT NULL DEFAULT '',
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		tags_json TEXT NOT NULL,
		summary TEXT NOT NULL,
		sections MEDIUMTEXT NOT NULL,
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT fk_resumes_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		key_hash CHAR(64) UNIQUE NOT NULL,
		key_prefix VARCHAR(8) NOT NULL,
		key_suffix VARCHAR(8) NOT NULL,
		resume_id BIGINT,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		permissions_json TEXT NOT NULL,
		expires_at DATETIME(6),
		max_uses BIGINT,
		rate_limit INT NOT NULL DEFAULT 1000,
		ip_whitelist_json TEXT NOT NULL,
		user_agent_pattern VARCHAR(512) NOT NULL DEFAULT '',
		rotation_policy VARCHAR(16) NOT NULL DEFAULT 'never',
		next_rotation_at DATETIME(6),
		key_version INT NOT NULL DEFAULT 1,
		use_count BIGINT NOT NULL DEFAULT 0,
		unique_ips BIGINT NOT NULL DEFAULT 0,
		first_used_at DATETIME(6),
		last_used_at DATETIME(6),
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT fk_api_keys_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT fk_api_keys_resume FOREIGN KEY (resume_id) REFERENCES resumes(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		key_id BIGINT NOT NULL,
		operation VARCHAR(255) NOT NULL DEFAULT '',
		ip VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		CONSTRAINT fk_api_key_usage_key FOREIGN KEY (key_id) REFERENCES api_keys(id) ON DELETE CASCADE,
		INDEX idx_api_key_usage_key (key_id)
	)`,
}
