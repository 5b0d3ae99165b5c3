package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// KnowledgeTool answers knowledge_query lookups from a local SQLite store.
// Entries are keyword-matched on topic and content; this is a cache of
// previously ingested facts, not a vector index.
type KnowledgeTool struct {
	db *sql.DB
}

// NewKnowledgeTool opens (or creates) the store at dbPath. ":memory:" gives
// an ephemeral store for tests.
func NewKnowledgeTool(dbPath string) (*KnowledgeTool, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_topic ON knowledge(topic);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize knowledge schema: %w", err)
	}

	return &KnowledgeTool{db: db}, nil
}

// Close releases the underlying database.
func (t *KnowledgeTool) Close() error { return t.db.Close() }

func (t *KnowledgeTool) Name() string { return "knowledge_query" }

func (t *KnowledgeTool) Description() string {
	return "Query stored knowledge by topic or keyword; input {query} or {topic}"
}

func (t *KnowledgeTool) Risk() RiskLevel { return RiskLow }

// Put stores or refreshes a fact under a topic.
func (t *KnowledgeTool) Put(ctx context.Context, topic, content string) error {
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO knowledge (topic, content, updated_at) VALUES (?, ?, ?)",
		strings.ToLower(strings.TrimSpace(topic)), content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store knowledge: %w", err)
	}
	return nil
}

// Execute looks up entries. Input: {"query": string} or {"topic": string}.
func (t *KnowledgeTool) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	query, _ := input["query"].(string)
	if query == "" {
		query, _ = input["topic"].(string)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := t.db.QueryContext(ctx,
		`SELECT topic, content, updated_at FROM knowledge
		 WHERE topic LIKE ? OR lower(content) LIKE ?
		 ORDER BY updated_at DESC LIMIT 10`,
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	defer rows.Close()

	var entries []map[string]any
	for rows.Next() {
		var topic, content string
		var updatedAt int64
		if err := rows.Scan(&topic, &content, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge row: %w", err)
		}
		entries = append(entries, map[string]any{
			"topic":      topic,
			"content":    content,
			"updated_at": updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge rows: %w", err)
	}

	return &Result{
		Success: true,
		Data: map[string]any{
			"entries": entries,
			"count":   len(entries),
		},
		ExecutionTime: time.Since(start),
	}, nil
}
