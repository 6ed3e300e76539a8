package daemon

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/sempr/studenttester-go/internal/report"
	"github.com/sempr/studenttester-go/pkg/constants"
)

// ResultStore persists the report of a graded job. A nil doc records that
// grading failed without a report.
type ResultStore interface {
	Store(ctx context.Context, id int, doc *report.Document) error
	Close() error
}

func NewStore(cfg *Config) (ResultStore, error) {
	if cfg.RedisEnable {
		rdb, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return &RedisStore{client: rdb, key: cfg.RedisResultKey}, nil
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to MySQL: %w", err)
	}
	return &MySQLStore{db: db, table: cfg.TableName}, nil
}

func encode(doc *report.Document) (string, error) {
	if doc == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RedisStore keeps reports in a hash keyed by submission id.
type RedisStore struct {
	client *redis.Client
	key    string
}

func (s *RedisStore) Store(ctx context.Context, id int, doc *report.Document) error {
	payload, err := encode(doc)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, strconv.Itoa(id), payload).Err(); err != nil {
		return fmt.Errorf("could not store result of %d: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// MySQLStore writes the grade back to the submission row.
type MySQLStore struct {
	db    *sql.DB
	table string
}

func (s *MySQLStore) Store(ctx context.Context, id int, doc *report.Document) error {
	payload, err := encode(doc)
	if err != nil {
		return err
	}
	result, percent := constants.JOB_GRADED, 0.0
	if doc == nil {
		result = constants.JOB_FAILED
	} else {
		percent = doc.Percent
	}
	query := fmt.Sprintf("UPDATE %s SET result=?, pass_rate=?, report=? WHERE submission_id=?", s.table)
	if _, err := s.db.ExecContext(ctx, query, result, percent/100, payload, id); err != nil {
		return fmt.Errorf("could not store result of %d: %w", id, err)
	}
	return nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }
