package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/autoaid/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL DEFAULT 'other',
		vehicle_make TEXT NOT NULL DEFAULT '',
		vehicle_model TEXT NOT NULL DEFAULT '',
		year_from INTEGER,
		year_to INTEGER,
		raw_text TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		checksum TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source_active ON knowledge_documents(source_type, is_active);
	CREATE INDEX IF NOT EXISTS idx_documents_vehicle ON knowledge_documents(vehicle_make, vehicle_model);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		vector_id TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES knowledge_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_vector ON document_chunks(vector_id);

	CREATE TABLE IF NOT EXISTS retrieval_logs (
		id TEXT PRIMARY KEY,
		case_id TEXT,
		query_text TEXT NOT NULL,
		top_k INTEGER NOT NULL,
		citations TEXT NOT NULL DEFAULT '[]',
		reranked INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_retrieval_created ON retrieval_logs(created_at);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		owner_ref TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		make TEXT NOT NULL,
		model TEXT NOT NULL,
		trim TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL,
		engine_cc INTEGER NOT NULL DEFAULT 0,
		transmission TEXT NOT NULL DEFAULT 'automatic',
		fuel_type TEXT NOT NULL DEFAULT 'gasoline',
		mileage_km INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vehicles_owner ON vehicles(owner_ref, created_at);
	CREATE INDEX IF NOT EXISTS idx_vehicles_make_model ON vehicles(make, model, year);

	CREATE TABLE IF NOT EXISTS case_sessions (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT 'api',
		status TEXT NOT NULL DEFAULT 'open',
		current_risk_level TEXT NOT NULL DEFAULT 'unknown',
		initial_problem_title TEXT NOT NULL DEFAULT '',
		latest_user_message TEXT NOT NULL DEFAULT '',
		final_summary TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		opened_at INTEGER NOT NULL,
		closed_at INTEGER,
		last_activity_at INTEGER NOT NULL,
		FOREIGN KEY (vehicle_id) REFERENCES vehicles(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_cases_status ON case_sessions(status, current_risk_level, opened_at);
	CREATE INDEX IF NOT EXISTS idx_cases_vehicle ON case_sessions(vehicle_id, last_activity_at);

	CREATE TABLE IF NOT EXISTS symptom_reports (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'user',
		raw_text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (case_id) REFERENCES case_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_symptoms_case ON symptom_reports(case_id, created_at);

	CREATE TABLE IF NOT EXISTS diagnosis_results (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		triage_level TEXT NOT NULL DEFAULT 'unknown',
		confidence REAL NOT NULL DEFAULT 0.5,
		likely_causes TEXT NOT NULL DEFAULT '[]',
		recommended_actions TEXT NOT NULL DEFAULT '[]',
		stop_driving_reasons TEXT NOT NULL DEFAULT '[]',
		model_name TEXT NOT NULL DEFAULT 'unknown',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		tokens_input INTEGER NOT NULL DEFAULT 0,
		tokens_output INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE (case_id, version),
		FOREIGN KEY (case_id) REFERENCES case_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_diagnoses_case ON diagnosis_results(case_id, created_at);

	CREATE TABLE IF NOT EXISTS case_notes (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'agent',
		note_text TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (case_id) REFERENCES case_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_notes_case ON case_notes(case_id, created_at);

	CREATE TABLE IF NOT EXISTS case_actions (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'executed',
		reason TEXT NOT NULL DEFAULT '',
		input_payload TEXT NOT NULL DEFAULT '{}',
		output_payload TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (case_id) REFERENCES case_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_actions_case ON case_actions(case_id, created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}
