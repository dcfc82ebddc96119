package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// pgConn adapts a dedicated pgx connection to the Conn interface. The
// repositories use the stdlib pool; LISTEN needs its own long-lived
// connection, so this one is opened outside the pool.
type pgConn struct {
	conn *pgx.Conn
}

// PGConnector returns a connect function for NewListener that dials connString.
func PGConnector(connString string) func(ctx context.Context) (Conn, error) {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, connString)
		if err != nil {
			return nil, err
		}
		return &pgConn{conn: conn}, nil
	}
}

func (c *pgConn) Listen(ctx context.Context, channels []string) error {
	for _, ch := range channels {
		if _, err := c.conn.Exec(ctx, fmt.Sprintf("LISTEN %q", ch)); err != nil {
			return err
		}
	}
	return nil
}

func (c *pgConn) Wait(ctx context.Context) (string, string, error) {
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return "", "", err
	}
	return n.Channel, n.Payload, nil
}

func (c *pgConn) Close(ctx context.Context) {
	_ = c.conn.Close(ctx)
}
