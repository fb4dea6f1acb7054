// Package healing implements the Self-Healing Daemon (spec §4.9, L9): a
// single-threaded scan/repair loop with a pending/in_progress/completed
// task state machine, grounded on aistore's ec/respondxaction.go
// XactRespond.Run() ticker-and-select loop.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package healing

import (
	"time"

	"github.com/infinite-map/imap/vio"
)

// TaskStatus is a HealingTask's lifecycle state (spec §4.9).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one corrupted-cluster repair unit.
type Task struct {
	ID        string
	Location  vio.Location
	Priority  float64 // distance from center; lower repairs first
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
