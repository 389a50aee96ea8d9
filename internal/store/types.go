package store

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common fields for all database models.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenNewID generates a new UUID v7 (time-ordered), so ids sort in creation
// order. The stores themselves order by created_at/started_at, not by id.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// StoreConfig configures which Schedule Store / Execution Log Store backend
// to build. Backend is "postgres" or "sqlite"; the URL/DSN is backend
// specific.
type StoreConfig struct {
	Backend     string
	PostgresDSN string
	SQLitePath  string
}

// IsPostgres reports whether the configured backend is Postgres.
func (c StoreConfig) IsPostgres() bool {
	return c.Backend == "postgres"
}
