package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/xiaowei/internal/models"
	"github.com/xhad/xiaowei/internal/types"
)

// DefaultHistoryLimit caps conversation listings when the caller gives no limit.
const DefaultHistoryLimit = 50

type PostgresConfig struct {
	ConnString string
	// VectorDim fixes the chunk embedding width. Zero leaves the column
	// unconstrained and skips the ivfflat index.
	VectorDim int
}

// Postgres is the durable store for documents, conversations, avatar configs
// and, through ChunkIndex, chunk embeddings.
type Postgres struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

var (
	_ types.DocumentStore     = (*Postgres)(nil)
	_ types.ConversationStore = (*Postgres)(nil)
	_ types.AvatarStore       = (*Postgres)(nil)
)

func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("%w: database connection string is required", models.ErrInvalidInput)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pg := &Postgres{
		config: config,
		pool:   pool,
	}

	if err := pg.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pg, nil
}

func (pg *Postgres) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := pg.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	vectorType := "vector"
	if pg.config.VectorDim > 0 {
		vectorType = fmt.Sprintf("vector(%d)", pg.config.VectorDim)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT,
			content TEXT NOT NULL,
			file_type TEXT,
			token_count INTEGER NOT NULL DEFAULT 0,
			uploaded_by BIGINT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			audio_url TEXT,
			reasoning_steps TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS conversations_user_idx ON conversations (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS avatar_config (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			wake_word TEXT NOT NULL,
			opening_message TEXT NOT NULL,
			tts_voice TEXT DEFAULT 'alloy',
			provider TEXT DEFAULT 'openai',
			avatar_id TEXT,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL,
			document_name TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding %s NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vectorType),
		`CREATE INDEX IF NOT EXISTS document_chunks_document_idx ON document_chunks (document_id)`,
	}

	if pg.config.VectorDim > 0 {
		statements = append(statements, `
		CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
		ON document_chunks
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`)
	}

	for _, stmt := range statements {
		if _, err := pg.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (pg *Postgres) CreateDocument(ctx context.Context, doc models.Document) (int64, error) {
	if doc.Name == "" {
		return 0, fmt.Errorf("%w: document name is required", models.ErrInvalidInput)
	}

	var id int64
	err := pg.pool.QueryRow(ctx, `
		INSERT INTO documents (name, url, content, file_type, token_count, uploaded_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sanitizeUTF8(doc.Name),
		doc.URL,
		sanitizeUTF8(doc.Content),
		doc.FileType,
		doc.TokenCount,
		doc.UploadedBy,
		doc.Metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

const documentColumns = `id, name, COALESCE(url, ''), content, COALESCE(file_type, ''), token_count, uploaded_by, metadata, created_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.URL,
		&doc.Content,
		&doc.FileType,
		&doc.TokenCount,
		&doc.UploadedBy,
		&doc.Metadata,
		&doc.CreatedAt,
	)
	return doc, err
}

func (pg *Postgres) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(pg.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (pg *Postgres) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := pg.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document together with its stored chunks.
func (pg *Postgres) DeleteDocument(ctx context.Context, id int64) error {
	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (pg *Postgres) AppendConversation(ctx context.Context, conv models.Conversation) error {
	return insertConversation(ctx, pg.pool, conv)
}

// AppendExchange writes both records in one transaction.
func (pg *Postgres) AppendExchange(ctx context.Context, user, assistant models.Conversation) error {
	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertConversation(ctx, tx, user); err != nil {
		return err
	}
	if err := insertConversation(ctx, tx, assistant); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertConversation(ctx context.Context, db execer, conv models.Conversation) error {
	var audioURL *string
	if conv.AudioURL != "" {
		audioURL = &conv.AudioURL
	}

	_, err := db.Exec(ctx, `
		INSERT INTO conversations (user_id, role, content, audio_url, reasoning_steps)
		VALUES ($1, $2, $3, $4, $5)`,
		conv.UserID,
		string(conv.Role),
		sanitizeUTF8(conv.Content),
		audioURL,
		conv.ReasoningSteps,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (pg *Postgres) ListConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := pg.pool.Query(ctx, `
		SELECT id, user_id, role, content, COALESCE(audio_url, ''), reasoning_steps, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		var role string
		if err := rows.Scan(&c.ID, &c.UserID, &role, &c.Content, &c.AudioURL, &c.ReasoningSteps, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Role = models.Role(role)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (pg *Postgres) ActiveAvatar(ctx context.Context) (*models.AvatarConfig, error) {
	var a models.AvatarConfig
	err := pg.pool.QueryRow(ctx, `
		SELECT id, name, wake_word, opening_message, COALESCE(tts_voice, 'alloy'),
			COALESCE(provider, 'openai'), COALESCE(avatar_id, ''), is_active, created_at
		FROM avatar_config
		WHERE is_active
		ORDER BY id DESC
		LIMIT 1`).Scan(
		&a.ID, &a.Name, &a.WakeWord, &a.OpeningMessage, &a.TTSVoice,
		&a.Provider, &a.AvatarID, &a.IsActive, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active avatar: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active avatar: %w", err)
	}
	return &a, nil
}

// CreateAvatar stores cfg and makes it the only active avatar.
func (pg *Postgres) CreateAvatar(ctx context.Context, cfg models.AvatarConfig) (int64, error) {
	if cfg.Name == "" || cfg.WakeWord == "" || cfg.OpeningMessage == "" {
		return 0, fmt.Errorf("%w: avatar name, wake word and opening message are required", models.ErrInvalidInput)
	}
	cfg = withAvatarDefaults(cfg)

	tx, err := pg.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE avatar_config SET is_active = false WHERE is_active`); err != nil {
		return 0, fmt.Errorf("failed to deactivate avatars: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO avatar_config (name, wake_word, opening_message, tts_voice, provider, avatar_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING id`,
		cfg.Name, cfg.WakeWord, cfg.OpeningMessage, cfg.TTSVoice, cfg.Provider, cfg.AvatarID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert avatar: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Pool exposes the connection pool so ChunkIndex can share it.
func (pg *Postgres) Pool() *pgxpool.Pool {
	return pg.pool
}

func (pg *Postgres) Close() {
	if pg.pool != nil {
		pg.pool.Close()
	}
}

func withAvatarDefaults(cfg models.AvatarConfig) models.AvatarConfig {
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = "alloy"
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	return cfg
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
