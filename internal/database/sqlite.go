package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	once sync.Once
)

// Init opens the process-wide database once.
func Init(dbPath string) error {
	var err error
	once.Do(func() {
		db, err = Open(dbPath)
	})
	return err
}

// Open 打开数据库并建表；dbPath 为 ":memory:" 时使用内存库
func Open(dbPath string) (*sql.DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		// 确保数据目录存在
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		// WAL 模式、忙等待超时
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	// SQLite 单写多读；内存库必须共享同一连接
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func GetDB() *sql.DB {
	return db
}

func createTables(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_plans (
		user_id TEXT PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'free',
		updated_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS usage_logs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		user_id TEXT NOT NULL,
		api_key_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_micros INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 1,
		fallback_used INTEGER NOT NULL DEFAULT 0,
		error_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_usage_logs_user_time ON usage_logs(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_usage_logs_time ON usage_logs(created_at DESC);

	CREATE TABLE IF NOT EXISTS model_preferences (
		user_id TEXT NOT NULL,
		model TEXT NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		override_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		rating_sum REAL NOT NULL DEFAULT 0,
		rating_count INTEGER NOT NULL DEFAULT 0,
		task_usage_json TEXT NOT NULL DEFAULT '{}',
		last_used_at TEXT,
		updated_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, model)
	);

	CREATE TABLE IF NOT EXISTS model_feedback (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		model TEXT NOT NULL,
		rating INTEGER NOT NULL,
		task_type TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_model_feedback_user_model ON model_feedback(user_id, model);

	CREATE TABLE IF NOT EXISTS cost_alerts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		day TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cost_alerts_user_day ON cost_alerts(user_id, day DESC);
	`
	_, err := conn.Exec(schema)
	return err
}

func runMigrations(conn *sql.DB) error {
	// 旧库可能缺少 fallback_used 列，忽略重复添加的错误
	_, _ = conn.Exec(`ALTER TABLE usage_logs ADD COLUMN fallback_used INTEGER NOT NULL DEFAULT 0`)
	return nil
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
