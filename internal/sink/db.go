package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/logging"
)

// DB inserts one row per message into cdevents_lake using a bounded
// min/max pgxpool.Pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewDB connects a pool to url with the given bounded connection counts
// and constructs a DB sink. pgxpool establishes connections lazily, on
// first use.
func NewDB(ctx context.Context, name, url string, minConns, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("sink/db: parse url: %w", err)
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sink/db: new pool: %w", err)
	}
	return &DB{pool: pool, logger: logging.Module(name)}, nil
}

// Close releases the pool's connections.
func (d *DB) Close() { d.pool.Close() }

func (d *DB) Run(ctx context.Context, sub *bus.Subscription) error {
	return runLoop(ctx, sub, func(msg *cdevents.Message) error {
		return d.insert(ctx, msg)
	}, func(err error) {
		d.logger.Warn("recv", "err", err)
	})
}

const insertQuery = `
INSERT INTO cdevents_lake (timestamp, payload, subject, predicate, version)
VALUES ($1, $2, $3, $4, $5)
`

func (d *DB) insert(ctx context.Context, msg *cdevents.Message) error {
	payload, err := msg.CDEvent.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", errs.ErrTransport, err)
	}

	subject := strings.ToLower(msg.CDEvent.TypeSubject())
	predicate := msg.CDEvent.TypePredicate()
	version := msg.CDEvent.TypeVersion()

	var versionArg any
	if version != nil {
		versionArg = version
	}

	_, err = d.pool.Exec(ctx, insertQuery, msg.CDEvent.Timestamp(), json.RawMessage(payload), subject, predicate, versionArg)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", errs.ErrTransport, err)
	}
	return nil
}
