package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

type ThreadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082603)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS thread_turns (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thread_turns_lookup
	ON thread_turns(workspace_id, bot_id, channel_id, thread_id, created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_workspace ON feedback(workspace_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ThreadRepository) AppendTurn(ctx context.Context, turn domain.ThreadTurn) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO thread_turns (id, workspace_id, bot_id, channel_id, thread_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		turn.ID, turn.WorkspaceID, turn.BotID, turn.ChannelID, turn.ThreadID,
		string(turn.Role), turn.Content, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert thread turn: %w", err)
	}
	return nil
}

func (r *ThreadRepository) ListTurns(ctx context.Context, scope domain.TenantScope, channelID, threadID string, limit int) ([]domain.ThreadTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, workspace_id, bot_id, channel_id, thread_id, role, content, created_at
FROM thread_turns
WHERE workspace_id = $1 AND bot_id = $2 AND channel_id = $3 AND thread_id = $4
ORDER BY created_at ASC
LIMIT $5
`, scope.WorkspaceID, scope.BotID, channelID, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list thread turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.ThreadTurn
	for rows.Next() {
		var turn domain.ThreadTurn
		var role string
		err := rows.Scan(
			&turn.ID, &turn.WorkspaceID, &turn.BotID, &turn.ChannelID, &turn.ThreadID,
			&role, &turn.Content, &turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan thread turn: %w", err)
		}
		turn.Role = domain.ThreadRole(role)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread turns: %w", err)
	}
	return turns, nil
}

func (r *ThreadRepository) HasBotReply(ctx context.Context, scope domain.TenantScope, channelID, threadID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM thread_turns
	WHERE workspace_id = $1 AND bot_id = $2 AND channel_id = $3 AND thread_id = $4 AND role = $5
)
`, scope.WorkspaceID, scope.BotID, channelID, threadID, string(domain.RoleBot))

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check bot reply: %w", err)
	}
	return exists, nil
}

func (r *ThreadRepository) RecordFeedback(ctx context.Context, fb domain.Feedback) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO feedback (id, workspace_id, bot_id, thread_id, kind, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		fb.ID, fb.WorkspaceID, fb.BotID, fb.ThreadID, string(fb.Kind), fb.Message, fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}
