package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"

	"github.com/sempr/studenttester-go/pkg/constants"
)

const prefetchMultiplier = 80

// JobFetcher hands out submission ids waiting to be graded.
type JobFetcher interface {
	GetJobs(ctx context.Context, maxJobs int) ([]int, error)
	// CheckOut claims a job; false means another daemon got it first.
	CheckOut(ctx context.Context, id int) (bool, error)
	Close() error
}

// NewFetcher picks the queue backend the config enables.
func NewFetcher(cfg *Config) (JobFetcher, error) {
	if cfg.RedisEnable {
		return NewRedisFetcher(cfg)
	}
	return NewMySQLFetcher(cfg)
}

func openDB(cfg *Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.UserName, cfg.Password, cfg.HostName, cfg.PortNumber, cfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MySQLFetcher polls the submission table.
type MySQLFetcher struct {
	db          *sql.DB
	table       string
	selectQuery string
}

func NewMySQLFetcher(cfg *Config) (*MySQLFetcher, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to MySQL: %w", err)
	}
	return newMySQLFetcher(db, cfg), nil
}

func newMySQLFetcher(db *sql.DB, cfg *Config) *MySQLFetcher {
	limit := prefetchMultiplier * cfg.MaxRunning
	var query string
	if cfg.TotalJudges <= 1 {
		query = fmt.Sprintf(
			"SELECT submission_id FROM %s WHERE result<%d ORDER BY result, submission_id LIMIT %d",
			cfg.TableName, constants.JOB_GRADING, limit)
	} else {
		query = fmt.Sprintf(
			"SELECT submission_id FROM %s WHERE result<%d AND MOD(submission_id,%d)=%d ORDER BY result, submission_id LIMIT %d",
			cfg.TableName, constants.JOB_GRADING, cfg.TotalJudges, cfg.JudgeMod, limit)
	}
	return &MySQLFetcher{db: db, table: cfg.TableName, selectQuery: query}
}

func (f *MySQLFetcher) GetJobs(ctx context.Context, maxJobs int) ([]int, error) {
	rows, err := f.db.QueryContext(ctx, f.selectQuery)
	if err != nil {
		return nil, fmt.Errorf("error querying for jobs: %w", err)
	}
	defer rows.Close()

	var jobs []int
	for rows.Next() && len(jobs) < maxJobs {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		jobs = append(jobs, id)
	}
	return jobs, rows.Err()
}

func (f *MySQLFetcher) CheckOut(ctx context.Context, id int) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET result=?, judgetime=NOW() WHERE submission_id=? AND result<? LIMIT 1", f.table)
	res, err := f.db.ExecContext(ctx, query, constants.JOB_GRADING, id, constants.JOB_GRADING)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (f *MySQLFetcher) Close() error { return f.db.Close() }

// RedisFetcher pops ids from a list.
type RedisFetcher struct {
	client *redis.Client
	qname  string
}

func newRedisClient(cfg *Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisServer, cfg.RedisPort),
		Password: cfg.RedisAuth,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisFetcher(cfg *Config) (*RedisFetcher, error) {
	rdb, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisFetcher{client: rdb, qname: cfg.RedisQName}, nil
}

func (f *RedisFetcher) GetJobs(ctx context.Context, maxJobs int) ([]int, error) {
	var jobs []int
	for i := 0; i < maxJobs; i++ {
		val, err := f.client.RPop(ctx, f.qname).Int()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error getting job from Redis: %w", err)
		}
		jobs = append(jobs, val)
	}
	return jobs, nil
}

// CheckOut always succeeds: RPop already handed the job to one daemon.
func (f *RedisFetcher) CheckOut(context.Context, int) (bool, error) { return true, nil }

func (f *RedisFetcher) Close() error { return f.client.Close() }
