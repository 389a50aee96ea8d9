// Package model defines the core data types shared by every component of
// the scheduling core: schedules, execution logs, cached tokens, and the
// wire payloads that move between the scheduler, the dispatch queue, and
// the event bus.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExecutionPolicy governs overlap behavior for concurrent executions with
// the same task_name and kwargs, whichever schedules dispatched them.
type ExecutionPolicy string

const (
	PolicyAllow ExecutionPolicy = "allow"
	PolicySkip  ExecutionPolicy = "skip"
	PolicyQueue ExecutionPolicy = "queue"
)

// Valid reports whether p is one of the three recognized policies.
func (p ExecutionPolicy) Valid() bool {
	switch p {
	case PolicyAllow, PolicySkip, PolicyQueue:
		return true
	}
	return false
}

// Schedule is the unit the scheduler fires on. See spec §3.
type Schedule struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	TaskName          string          `db:"task_name" json:"task_name"`
	CronExpression    string          `db:"cron_expression" json:"cron_expression"`
	Enabled           bool            `db:"enabled" json:"enabled"`
	Args              json.RawMessage `db:"args" json:"args,omitempty"`
	Kwargs            json.RawMessage `db:"kwargs" json:"kwargs,omitempty"`
	Description       string          `db:"description" json:"description,omitempty"`
	Category          string          `db:"category" json:"category,omitempty"`
	Tags              []string        `db:"tags" json:"tags,omitempty"`
	ExecutionPolicy   ExecutionPolicy `db:"execution_policy" json:"execution_policy"`
	AutoGeneratedName bool            `db:"auto_generated_name" json:"auto_generated_name"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter combines predicates accepted by ScheduleStore.List.
type ScheduleFilter struct {
	Enabled  *bool
	Category string
	Tags     []string // any-of
	TaskName string
	Limit    int
	Offset   int
}

// ScheduleDraft carries the caller-supplied fields for a new schedule; the
// store assigns ID, timestamps, and (when Name is empty) an auto-generated
// name.
type ScheduleDraft struct {
	Name            string
	TaskName        string
	CronExpression  string
	Enabled         bool
	Args            json.RawMessage
	Kwargs          json.RawMessage
	Description     string
	Category        string
	Tags            []string
	ExecutionPolicy ExecutionPolicy
}

// ScheduleUpdate holds optional fields for a partial update; nil fields are
// left unchanged.
type ScheduleUpdate struct {
	Name            *string
	TaskName        *string
	CronExpression  *string
	Args            json.RawMessage
	Description     *string
	Category        *string
	Tags            []string
	ExecutionPolicy *ExecutionPolicy
}

// ExecutionStatus is the lifecycle state of an ExecutionLog.
type ExecutionStatus string

const (
	StatusRunning ExecutionStatus = "running"
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
)

// Terminal reports whether s is one of the three terminal states.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ExecutionLog is one record per task invocation. See spec §3.
type ExecutionLog struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	ScheduleID   *uuid.UUID      `db:"schedule_id" json:"schedule_id,omitempty"`
	TaskName     string          `db:"task_name" json:"task_name"`
	StartedAt    time.Time       `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	Status       ExecutionStatus `db:"status" json:"status"`
	Result       json.RawMessage `db:"result" json:"result,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
}

// ExecutionLogFilter combines predicates for ExecutionLogStore.ListRecent.
type ExecutionLogFilter struct {
	ScheduleID *uuid.UUID
	TaskName   string
	Status     ExecutionStatus
	Limit      int
}

// TokenRecord is cached credentials for an external API. See spec §3.
type TokenRecord struct {
	Key            string    `json:"key"`
	RefreshToken   string    `json:"refresh_token"`
	IDToken        string    `json:"id_token"`
	IDTokenExpiry  time.Time `json:"id_token_expiry"`
}

// MutationEventType enumerates the schedule-mutation event kinds published
// on the Event Bus.
type MutationEventType string

const (
	EventCreated  MutationEventType = "created"
	EventUpdated  MutationEventType = "updated"
	EventDeleted  MutationEventType = "deleted"
	EventEnabled  MutationEventType = "enabled"
	EventDisabled MutationEventType = "disabled"
)

// MutationEvent is the JSON envelope published on the mutation channel.
// See spec §6.3.
type MutationEvent struct {
	EventType  MutationEventType `json:"event_type"`
	ScheduleID uuid.UUID         `json:"schedule_id"`
	Timestamp  time.Time         `json:"timestamp"`
}

// ListedInfo is one listed-company record for a given trade date, the
// canonical task's upsert target. See spec §4.8.
type ListedInfo struct {
	Date          string `db:"date" json:"date"` // YYYY-MM-DD
	Code          string `db:"code" json:"code"` // 4-character identifier
	CompanyName   string `db:"company_name" json:"company_name"`
	MarketCode    string `db:"market_code" json:"market_code"`
	MarketName    string `db:"market_name" json:"market_name"`
	SectorCode17  string `db:"sector_code_17" json:"sector_code_17,omitempty"`
	SectorCode33  string `db:"sector_code_33" json:"sector_code_33,omitempty"`
}

// DispatchMessage is the in-flight payload from scheduler to worker. See
// spec §3 and §6.2.
type DispatchMessage struct {
	TaskName        string          `json:"task_name"`
	ScheduleID      uuid.UUID       `json:"schedule_id"`
	ScheduleName    string          `json:"schedule_name"`
	Args            json.RawMessage `json:"args,omitempty"`
	Kwargs          json.RawMessage `json:"kwargs,omitempty"`
	ExecutionPolicy ExecutionPolicy `json:"execution_policy"`
	DispatchID      uuid.UUID       `json:"dispatch_id"`
}
