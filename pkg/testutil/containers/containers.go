//go:build integration

// Package containers provides testcontainers-based fixtures for integration
// tests. Containers are shared across test suites within a package.
package containers

import (
	"sync"
	"testing"
)

// Manager provides thread-safe access to shared containers, started on first
// request and reused for the rest of the test process.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	kafka    *KafkaContainer
}

var (
	globalManager *Manager
	initOnce      sync.Once
)

// GetManager returns the singleton container manager.
func GetManager() *Manager {
	initOnce.Do(func() {
		globalManager = &Manager{}
	})
	return globalManager
}

// GetPostgres returns a Postgres container, starting it if necessary.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
	}
	return m.postgres
}

// GetRedis returns a Redis container, starting it if necessary.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}

// GetKafka returns a Kafka container, starting it if necessary.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kafka == nil {
		m.kafka = NewKafkaContainer(t)
	}
	return m.kafka
}
