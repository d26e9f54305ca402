// Package testutil starts the relay's backing services in containers for
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/birbparty/pio-go/internal/cache"
	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/queue"
)

// TestContainers holds all test containers
type TestContainers struct {
	PostgresContainer testcontainers.Container
	RedisContainer    testcontainers.Container
	NATSContainer     testcontainers.Container
	PostgresURL       string
	RedisHost         string
	RedisPort         int
	NATSURL           string
}

// StartContainers starts PostgreSQL, Redis and NATS with JetStream
func StartContainers(ctx context.Context) (*TestContainers, error) {
	tc := &TestContainers{}

	// Start PostgreSQL
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("pio_relay"),
		postgres.WithUsername("pio"),
		postgres.WithPassword("pio"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}
	tc.PostgresContainer = pgContainer

	tc.PostgresURL, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	// Start Redis
	redisContainer, err := redis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}
	tc.RedisContainer = redisContainer

	if tc.RedisHost, tc.RedisPort, err = hostPort(ctx, redisContainer, "6379/tcp"); err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to get redis address: %w", err)
	}

	// Start NATS with JetStream
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to start nats container: %w", err)
	}
	tc.NATSContainer = natsContainer

	natsHost, natsPort, err := hostPort(ctx, natsContainer, "4222/tcp")
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to get nats address: %w", err)
	}
	tc.NATSURL = fmt.Sprintf("nats://%s:%d", natsHost, natsPort)

	return tc, nil
}

func hostPort(ctx context.Context, c testcontainers.Container, port nat.Port) (string, int, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", 0, err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return "", 0, err
	}
	return host, n, nil
}

// DatabaseConfig returns a database config pointing at the container
func (tc *TestContainers) DatabaseConfig() *database.Config {
	return &database.Config{
		URL:             tc.PostgresURL,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}
}

// CacheConfig returns a Redis config pointing at the container
func (tc *TestContainers) CacheConfig() *cache.Config {
	return &cache.Config{
		Host:         tc.RedisHost,
		Port:         tc.RedisPort,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		SeenTTL:      time.Hour,
		KeyPrefix:    "pio:relay:test:",
	}
}

// QueueConfig returns a queue config pointing at the container. stream
// names the stream and consumer so tests do not share state.
func (tc *TestContainers) QueueConfig(stream string) *queue.Config {
	return &queue.Config{
		URL:                   tc.NATSURL,
		Name:                  "pio-integration",
		ReconnectWait:         time.Second,
		StreamName:            stream,
		StreamMaxAge:          time.Hour,
		StreamMaxBytes:        -1,
		StreamMaxMsgs:         -1,
		StreamMaxMsgSize:      -1,
		StreamReplicas:        1,
		DuplicateWindow:       time.Minute,
		ConsumerName:          stream + "-relay",
		ConsumerMaxDeliver:    3,
		ConsumerAckWait:       5 * time.Second,
		ConsumerMaxAckPending: 100,
		FetchSize:             10,
		FetchTimeout:          200 * time.Millisecond,
	}
}

// Cleanup terminates all containers
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
		}
	}

	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate redis: %w", err))
		}
	}

	if tc.NATSContainer != nil {
		if err := tc.NATSContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate nats: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}
