package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	appconfig "github.com/caresync/telehealth-ivr/internal/config"
	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || cfg.UseMemoryStore || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores groups the persistence the voice service runs on.
type Stores struct {
	Directory    directory.Directory
	Appointments appointments.Repository
	Sessions     ivr.SessionStore
	// SQL is a database/sql view of the Postgres pool; nil in memory mode.
	SQL *sql.DB

	pool *pgxpool.Pool
}

// Close releases the database pool.
func (s *Stores) Close() {
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// BuildStores connects Postgres and picks the session store. Without Redis,
// sessions fall back to process memory.
func BuildStores(ctx context.Context, cfg *appconfig.Config, loc *time.Location, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stores := &Stores{}
	if redisClient != nil {
		stores.Sessions = ivr.NewRedisSessionStore(redisClient, cfg.SessionTTL)
	} else {
		logger.Warn("using in-memory call sessions; sessions are lost on restart")
		stores.Sessions = ivr.NewMemorySessionStore(cfg.SessionTTL)
	}

	if cfg.UseMemoryStore {
		logger.Warn("using in-memory directory and appointments")
		stores.Directory = directory.NewMemoryDirectory(seedDoctors(cfg.DoctorShortcuts)...)
		stores.Appointments = appointments.NewMemoryRepository()
		return stores, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	stores.pool = pool
	stores.SQL = stdlib.OpenDBFromPool(pool)
	stores.Directory = directory.NewPostgresDirectory(pool)
	stores.Appointments = appointments.NewPostgresRepository(pool, loc)
	return stores, nil
}

// seedDoctors gives the in-memory directory one doctor per keypad shortcut
// so the demo dialogue can book end to end.
func seedDoctors(shortcuts map[string]string) []directory.User {
	digits := make([]string, 0, len(shortcuts))
	for d := range shortcuts {
		digits = append(digits, d)
	}
	sort.Strings(digits)

	created := time.Now().Add(-time.Hour)
	out := make([]directory.User, 0, len(digits))
	for i, d := range digits {
		out = append(out, directory.User{
			Name:      shortcuts[d],
			Role:      directory.RoleDoctor,
			Specialty: "General Medicine",
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}
