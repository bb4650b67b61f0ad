package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ClientFinder resolves Client entities owned by the clients module. A
// missing client is (nil, nil).
type ClientFinder interface {
	FindClient(ctx context.Context, id string) (*ClientSummary, error)
}

type clientFinder struct {
	db *sql.DB
}

// NewClientFinder creates a ClientFinder reading the clients table.
func NewClientFinder(db *sql.DB) ClientFinder {
	return &clientFinder{db: db}
}

func (f *clientFinder) FindClient(ctx context.Context, id string) (*ClientSummary, error) {
	c := &ClientSummary{}
	err := f.db.QueryRowContext(ctx, `SELECT id, name FROM clients WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return c, nil
}
