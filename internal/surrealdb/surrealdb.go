// Package surrealdb persists embedding vectors in SurrealDB so repeated
// runs skip the embedding server for texts they have already seen.
package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdk "github.com/surrealdb/surrealdb.go"
)

// Options are the connection settings for a Client.
type Options struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Client is an embedding.Cache backed by the `embedding` table.
type Client struct {
	db *sdk.DB
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	db, err := sdk.FromEndpointURLString(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, sdk.Auth{
		Namespace: opts.Namespace,
		Database:  opts.Database,
		Username:  opts.Username,
		Password:  opts.Password,
	}); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if err := db.Use(ctx, opts.Namespace, opts.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("selecting ns/db: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close(ctx)
}

const schema = `
DEFINE TABLE IF NOT EXISTS embedding SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS key        ON TABLE embedding TYPE string;
DEFINE FIELD IF NOT EXISTS vector     ON TABLE embedding TYPE array<float>;
DEFINE FIELD IF NOT EXISTS created_at ON TABLE embedding TYPE datetime;

DEFINE INDEX IF NOT EXISTS idx_embedding_key ON TABLE embedding FIELDS key UNIQUE;
`

func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := sdk.Query[any](ctx, c.db, schema, nil); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

type vectorRow struct {
	Key    string    `json:"key"`
	Vector []float64 `json:"vector"`
}

func (c *Client) Lookup(ctx context.Context, keys []string) (map[string][]float32, error) {
	if len(keys) == 0 {
		return map[string][]float32{}, nil
	}
	results, err := sdk.Query[[]vectorRow](ctx, c.db,
		`SELECT key, vector FROM embedding WHERE key IN $keys`,
		map[string]any{"keys": keys})
	if err != nil {
		return nil, fmt.Errorf("looking up %d embeddings: %w", len(keys), err)
	}
	if len(*results) == 0 {
		return map[string][]float32{}, nil
	}
	return rowsToVectors((*results)[0].Result), nil
}

func (c *Client) Store(ctx context.Context, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := sdk.Query[any](ctx, c.db,
		`FOR $e IN $entries {
			UPSERT type::thing("embedding", $e.key) CONTENT $e;
		}`,
		map[string]any{"entries": records(entries, time.Now().UTC())})
	if err != nil {
		return fmt.Errorf("storing %d embeddings: %w", len(entries), err)
	}
	return nil
}

func rowsToVectors(rows []vectorRow) map[string][]float32 {
	out := make(map[string][]float32, len(rows))
	for _, r := range rows {
		if r.Key == "" || len(r.Vector) == 0 {
			continue
		}
		v := make([]float32, len(r.Vector))
		for i, x := range r.Vector {
			v[i] = float32(x)
		}
		out[r.Key] = v
	}
	return out
}

// records orders entries by key so writes are reproducible.
func records(entries map[string][]float32, now time.Time) []map[string]any {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		vec := make([]float64, len(entries[k]))
		for i, x := range entries[k] {
			vec[i] = float64(x)
		}
		out = append(out, map[string]any{
			"key":        k,
			"vector":     vec,
			"created_at": now,
		})
	}
	return out
}
