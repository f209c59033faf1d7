package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evelynmon/wabot/core/conversation"
)

const (
	selectConversation = `SELECT sender, stage, display_name, answers FROM conversations WHERE sender = $1`
	insertConversation = `INSERT INTO conversations (sender, stage, display_name, answers)
VALUES ($1, $2, '', '{}') ON CONFLICT (sender) DO NOTHING`
	upsertConversation = `INSERT INTO conversations (sender, stage, display_name, answers, updated_at)
VALUES (:sender, :stage, :display_name, :answers, :updated_at)
ON CONFLICT (sender) DO UPDATE SET
	stage = EXCLUDED.stage,
	display_name = EXCLUDED.display_name,
	answers = EXCLUDED.answers,
	updated_at = EXCLUDED.updated_at`
	deleteConversation = `DELETE FROM conversations WHERE sender = $1`
	listConversations  = `SELECT sender, stage, display_name, answers FROM conversations ORDER BY sender`
)

type conversationRow struct {
	Sender      string         `db:"sender"`
	Stage       string         `db:"stage"`
	DisplayName string         `db:"display_name"`
	Answers     pq.StringArray `db:"answers"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r conversationRow) state() (conversation.State, error) {
	stage := conversation.Stage(r.Stage)
	if !stage.Valid() {
		return conversation.State{}, fmt.Errorf("session: sender %q has invalid stage %q", r.Sender, r.Stage)
	}
	answers := []string(r.Answers)
	if answers == nil {
		answers = []string{}
	}
	return conversation.State{Stage: stage, DisplayName: r.DisplayName, Answers: answers}, nil
}

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by the conversations table.
// The schema is owned by the migrations directory.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (p *postgresStore) GetOrCreate(ctx context.Context, sender string) (conversation.State, error) {
	var row conversationRow
	err := p.db.GetContext(ctx, &row, selectConversation, sender)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := p.db.ExecContext(ctx, insertConversation, sender, string(conversation.AwaitingGreeting)); err != nil {
			return conversation.State{}, fmt.Errorf("session: insert %q: %w", sender, err)
		}
		err = p.db.GetContext(ctx, &row, selectConversation, sender)
	}
	if err != nil {
		return conversation.State{}, fmt.Errorf("session: load %q: %w", sender, err)
	}
	return row.state()
}

func (p *postgresStore) Save(ctx context.Context, sender string, st conversation.State) error {
	row := conversationRow{
		Sender:      sender,
		Stage:       string(st.Stage),
		DisplayName: st.DisplayName,
		Answers:     pq.StringArray(st.Answers),
		UpdatedAt:   time.Now().UTC(),
	}
	if row.Answers == nil {
		row.Answers = pq.StringArray{}
	}
	if _, err := p.db.NamedExecContext(ctx, upsertConversation, row); err != nil {
		return fmt.Errorf("session: save %q: %w", sender, err)
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, sender string) error {
	if _, err := p.db.ExecContext(ctx, deleteConversation, sender); err != nil {
		return fmt.Errorf("session: delete %q: %w", sender, err)
	}
	return nil
}

func (p *postgresStore) Snapshot(ctx context.Context) (map[string]conversation.State, error) {
	var rows []conversationRow
	if err := p.db.SelectContext(ctx, &rows, listConversations); err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := make(map[string]conversation.State, len(rows))
	for _, row := range rows {
		st, err := row.state()
		if err != nil {
			return nil, err
		}
		out[row.Sender] = st
	}
	return out, nil
}
