package friends

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGraph reads accepted friendships from the ripple.friendships table.
//
// Ownership model:
// - PostgresGraph does NOT own the pgx pool. The caller must close the pool.
type PostgresGraph struct {
	pool   *pgxpool.Pool
	schema string
}

// GraphOption configures PostgresGraph behavior.
type GraphOption func(*PostgresGraph) error

// WithGraphSchema sets the DB schema used by the graph (default: "ripple").
func WithGraphSchema(schema string) GraphOption {
	return func(g *PostgresGraph) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("friends: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("friends: invalid schema identifier")
		}
		g.schema = schema
		return nil
	}
}

// NewPostgresGraph constructs a Postgres-backed Graph.
func NewPostgresGraph(pool *pgxpool.Pool, opts ...GraphOption) (*PostgresGraph, error) {
	g := &PostgresGraph{
		pool:   pool,
		schema: "ripple",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.pool == nil {
		return nil, errors.New("friends: nil pool")
	}
	return g, nil
}

// AcceptedFriendsOf flattens the stored unordered-pair rows into the set of
// peers of userID.
func (g *PostgresGraph) AcceptedFriendsOf(ctx context.Context, userID string) (map[string]struct{}, error) {
	if g == nil || g.pool == nil {
		return nil, errors.New("friends: nil graph")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return map[string]struct{}{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	friendships := pgIdent(g.schema, "friendships")

	rows, err := g.pool.Query(ctx,
		`SELECT user1, user2
		   FROM `+friendships+`
		  WHERE (user1 = $1 OR user2 = $1)
		    AND status = 'accepted'`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var u1, u2 string
		if err := rows.Scan(&u1, &u2); err != nil {
			return nil, err
		}
		if u1 == userID {
			out[u2] = struct{}{}
		} else {
			out[u1] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
