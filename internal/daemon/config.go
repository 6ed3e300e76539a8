package daemon

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores the grading daemon settings read from etc/judge.conf.
type Config struct {
	Home        string
	Debug       bool
	Once        bool
	MetricsAddr string

	HostName   string
	UserName   string
	Password   string
	DBName     string
	PortNumber int
	TableName  string

	MaxRunning  int
	SleepTime   int
	TotalJudges int
	JudgeMod    int

	RedisEnable bool
	RedisServer string
	RedisPort   int
	RedisAuth   string
	RedisQName  string
	// RedisResultKey is the hash grading reports are stored in.
	RedisResultKey string

	// SubmissionDir holds one <id>/test and <id>/content tree per job.
	SubmissionDir string
	HarnessConfig string
	GradeTimeout  time.Duration
	CPULimit      uint64
	MemLimitMB    uint64
}

// LoadConfig reads a key=value judge.conf over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		HostName:       "127.0.0.1",
		PortNumber:     3306,
		DBName:         "grading",
		TableName:      "submission",
		MaxRunning:     3,
		SleepTime:      1,
		TotalJudges:    1,
		RedisServer:    "127.0.0.1",
		RedisPort:      6379,
		RedisQName:     "grading:queue",
		RedisResultKey: "grading:results",
		SubmissionDir:  "submissions",
		GradeTimeout:   5 * time.Minute,
		CPULimit:       600,
		MemLimitMB:     4096,
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if err := assignConfigValue(cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	if cfg.MaxRunning < 1 {
		cfg.MaxRunning = 1
	}
	return cfg, nil
}

func assignConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "OJ_HOST_NAME":
		cfg.HostName = value
	case "OJ_USER_NAME":
		cfg.UserName = value
	case "OJ_PASSWORD":
		cfg.Password = value
	case "OJ_DB_NAME":
		cfg.DBName = value
	case "OJ_TABLE_NAME":
		cfg.TableName = value
	case "OJ_PORT_NUMBER":
		cfg.PortNumber, err = strconv.Atoi(value)
	case "OJ_RUNNING":
		cfg.MaxRunning, err = strconv.Atoi(value)
	case "OJ_SLEEP_TIME":
		cfg.SleepTime, err = strconv.Atoi(value)
	case "OJ_TOTAL":
		cfg.TotalJudges, err = strconv.Atoi(value)
	case "OJ_MOD":
		cfg.JudgeMod, err = strconv.Atoi(value)
	case "OJ_REDISENABLE":
		cfg.RedisEnable = value == "1"
	case "OJ_REDISSERVER":
		cfg.RedisServer = value
	case "OJ_REDISPORT":
		cfg.RedisPort, err = strconv.Atoi(value)
	case "OJ_REDISAUTH":
		cfg.RedisAuth = value
	case "OJ_REDISQNAME":
		cfg.RedisQName = value
	case "OJ_REDIS_RESULT_KEY":
		cfg.RedisResultKey = value
	case "OJ_SUBMISSION_DIR":
		cfg.SubmissionDir = value
	case "OJ_HARNESS_CONFIG":
		cfg.HarnessConfig = value
	case "OJ_GRADE_TIMEOUT":
		var secs int
		secs, err = strconv.Atoi(value)
		cfg.GradeTimeout = time.Duration(secs) * time.Second
	case "OJ_CPU_LIMIT":
		cfg.CPULimit, err = strconv.ParseUint(value, 10, 64)
	case "OJ_MEM_LIMIT":
		cfg.MemLimitMB, err = strconv.ParseUint(value, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// path resolves p against the daemon home.
func (c *Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// Roots returns the test and content roots of a job.
func (c *Config) Roots(id int) (testRoot, contentRoot string) {
	dir := filepath.Join(c.path(c.SubmissionDir), strconv.Itoa(id))
	return filepath.Join(dir, "test"), filepath.Join(dir, "content")
}
