package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr             = "127.0.0.1:8090"
	defaultSnapshotInterval = time.Minute
	defaultSnapshotKeep     = 5
	defaultArchiveRetention = 7 * 24 * time.Hour
	defaultRedisNamespace   = "datamap"
)

// Roles
const (
	roleWriter   = "writer"
	roleFollower = "follower"
)

// Lease backends
const (
	leaseSQLite = "sqlite"
	leaseRedis  = "redis"
)

type Config struct {
	DBPath    string
	GraphPath string
	Addr      string
	Token     string
	Role      string

	RedisAddr      string
	RedisNamespace string
	LeaseBackend   string

	SnapshotInterval time.Duration
	SnapshotKeep     int

	ArchiveDir       string
	ArchiveRetention time.Duration

	TLSCertFile string
	TLSKeyFile  string

	LogFormat string
	Debug     bool
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "datamap.db")
	defaultGraphPath := filepath.Join(cwd, "datamap.json")

	snapshotInterval, err := durationFromEnv("DATAMAP_SNAPSHOT_INTERVAL", defaultSnapshotInterval)
	if err != nil {
		return Config{}, err
	}
	archiveRetention, err := durationFromEnv("DATAMAP_ARCHIVE_RETENTION", defaultArchiveRetention)
	if err != nil {
		return Config{}, err
	}
	snapshotKeep := defaultSnapshotKeep
	if v := os.Getenv("DATAMAP_SNAPSHOT_KEEP"); v != "" {
		snapshotKeep, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATAMAP_SNAPSHOT_KEEP: %w", err)
		}
	}
	debug, _ := strconv.ParseBool(os.Getenv("DATAMAP_DEBUG"))

	flagSet := flag.NewFlagSet("datamap-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", envOrDefault("DATAMAP_DB_PATH", defaultDBPath), "path to SQLite journal")
	flagGraph := flagSet.String("graph", envOrDefault("DATAMAP_GRAPH_PATH", defaultGraphPath), "graph document loaded on first start and on SIGHUP")
	flagAddr := flagSet.String("addr", addrFromEnv(defaultAddr), "HTTP listen address")
	flagToken := flagSet.String("token", os.Getenv("DATAMAP_TOKEN"), "bearer token required for mutations")
	flagRole := flagSet.String("role", envOrDefault("DATAMAP_ROLE", roleWriter), "writer|follower")
	flagRedis := flagSet.String("redis-addr", os.Getenv("DATAMAP_REDIS_ADDR"), "Redis address for the snapshot cache")
	flagNamespace := flagSet.String("redis-namespace", envOrDefault("DATAMAP_REDIS_NAMESPACE", defaultRedisNamespace), "Redis key prefix")
	flagLease := flagSet.String("lease", envOrDefault("DATAMAP_LEASE_BACKEND", leaseSQLite), "writer lease backend: sqlite|redis")
	flagSnapInterval := flagSet.String("snapshot-interval", snapshotInterval.String(), "how often the graph is checkpointed")
	flagSnapKeep := flagSet.Int("snapshot-keep", snapshotKeep, "number of checkpoints kept")
	flagArchiveDir := flagSet.String("archive-dir", os.Getenv("DATAMAP_ARCHIVE_DIR"), "directory for archived journal segments; empty disables archiving")
	flagArchiveRetention := flagSet.String("archive-retention", archiveRetention.String(), "age after which checkpointed events are archived")
	flagTLSCert := flagSet.String("tls-cert", os.Getenv("DATAMAP_TLS_CERT"), "TLS certificate file")
	flagTLSKey := flagSet.String("tls-key", os.Getenv("DATAMAP_TLS_KEY"), "TLS key file")
	flagLogFormat := flagSet.String("log-format", envOrDefault("DATAMAP_LOG_FORMAT", "json"), "json|logfmt|text")
	flagDebug := flagSet.Bool("debug", debug, "enable debug logging")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	snapIntervalParsed, err := time.ParseDuration(*flagSnapInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid snapshot interval: %w", err)
	}
	retentionParsed, err := time.ParseDuration(*flagArchiveRetention)
	if err != nil {
		return Config{}, fmt.Errorf("invalid archive retention: %w", err)
	}

	config := Config{
		DBPath:           resolvePath(*flagDB, cwd),
		GraphPath:        resolvePath(*flagGraph, cwd),
		Addr:             strings.TrimSpace(*flagAddr),
		Token:            *flagToken,
		Role:             strings.ToLower(strings.TrimSpace(*flagRole)),
		RedisAddr:        strings.TrimSpace(*flagRedis),
		RedisNamespace:   strings.TrimSpace(*flagNamespace),
		LeaseBackend:     strings.ToLower(strings.TrimSpace(*flagLease)),
		SnapshotInterval: snapIntervalParsed,
		SnapshotKeep:     *flagSnapKeep,
		ArchiveDir:       resolvePath(*flagArchiveDir, cwd),
		ArchiveRetention: retentionParsed,
		TLSCertFile:      resolvePath(*flagTLSCert, cwd),
		TLSKeyFile:       resolvePath(*flagTLSKey, cwd),
		LogFormat:        *flagLogFormat,
		Debug:            *flagDebug,
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.Role != roleWriter && c.Role != roleFollower {
		return fmt.Errorf("unsupported role: %s", c.Role)
	}
	if c.LeaseBackend != leaseSQLite && c.LeaseBackend != leaseRedis {
		return fmt.Errorf("unsupported lease backend: %s", c.LeaseBackend)
	}
	if c.Role == roleFollower && c.RedisAddr == "" {
		return errors.New("role=follower requires redis-addr")
	}
	if c.LeaseBackend == leaseRedis && c.RedisAddr == "" {
		return errors.New("lease=redis requires redis-addr")
	}
	if c.SnapshotInterval <= 0 {
		return errors.New("snapshot interval must be positive")
	}
	if c.SnapshotKeep < 1 {
		return errors.New("snapshot-keep must be at least 1")
	}
	if c.ArchiveDir != "" && c.ArchiveRetention <= 0 {
		return errors.New("archive retention must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls-cert and tls-key must be set together")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("DATAMAP_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("DATAMAP_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
