package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/seantiz/conductor/internal/model"
)

// Short status strings.
const (
	SummaryNotSubmitted = "Not submitted"
	SummaryQueued       = "Queued"
	SummarySubmitted    = "Submitted for execution"
	SummaryInProgress   = "In progress"
	SummaryCancelled    = "Cancelled"
	SummaryFailed       = "Failed"
	SummaryCompleted    = "Completed"
)

// maxResultLen bounds how much of a value StatusDetail prints.
const maxResultLen = 200

// StatusSummary returns a one-line status.
func (t *Task) StatusSummary() string {
	switch t.Status() {
	case model.StatusQueued:
		return SummaryQueued
	case model.StatusSubmitted:
		return SummarySubmitted
	case model.StatusRunning:
		if details, _ := t.BlockingDetails(); details != "" {
			return SummaryInProgress + ", " + details
		}
		return SummaryInProgress
	case model.StatusCancelled:
		return SummaryCancelled
	case model.StatusFailed:
		return SummaryFailed
	case model.StatusCompleted:
		return SummaryCompleted
	default:
		return SummaryNotSubmitted
	}
}

// StatusDetail describes the task in more depth: timing, outcome, what it
// waits on and, for compositions, each queued child. Lines are joined with
// newlines when multiline is set and with "; " otherwise.
func (t *Task) StatusDetail(multiline bool) string {
	t.mu.Lock()
	status := t.status
	submitted, started, ended := t.submittedAt, t.startedAt, t.endedAt
	result, err := t.result, t.err
	details, blockingTask := t.blockingDetails, t.blockingTask
	extra, parent := t.extraStatus, t.submittedBy
	t.mu.Unlock()

	var lines []string
	switch status {
	case model.StatusPending, model.StatusQueued:
		lines = append(lines, t.StatusSummary())
	case model.StatusSubmitted:
		lines = append(lines, fmt.Sprintf("%s %s", SummarySubmitted, humanize.Time(submitted)))
	case model.StatusRunning:
		lines = append(lines, fmt.Sprintf("%s for %s", SummaryInProgress, elapsed(started, now())))
	case model.StatusCancelled:
		if started.IsZero() {
			lines = append(lines, SummaryCancelled+" before starting")
		} else {
			lines = append(lines, fmt.Sprintf("%s after %s", SummaryCancelled, elapsed(started, ended)))
		}
	case model.StatusFailed:
		lines = append(lines, fmt.Sprintf("%s after %s: %v", SummaryFailed, elapsed(started, ended), err))
	case model.StatusCompleted:
		line := fmt.Sprintf("%s after %s", SummaryCompleted, elapsed(started, ended))
		if result != nil {
			line += ", result: " + truncate(fmt.Sprint(result))
		}
		lines = append(lines, line)
	}

	if extra != "" {
		lines = append(lines, extra)
	}
	if details != "" {
		lines = append(lines, "Blocked: "+details)
	}
	if blockingTask != nil {
		lines = append(lines, "Waiting on: "+blockingTask.String())
	}
	if parent != nil {
		lines = append(lines, "Submitted by: "+parent.String())
	}
	if t.comp != nil {
		lines = append(lines, "Composition: "+t.CompositionState().String())
		for _, child := range t.comp.snapshot() {
			lines = append(lines, fmt.Sprintf("  %s: %s", child.name, child.StatusSummary()))
		}
	}

	if multiline {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines, "; ")
}

func elapsed(from, to time.Time) string {
	if from.IsZero() || to.IsZero() {
		return "0s"
	}
	d := to.Sub(from)
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return strings.TrimSpace(humanize.RelTime(from, to, "", ""))
}

func truncate(s string) string {
	if len(s) <= maxResultLen {
		return s
	}
	return s[:maxResultLen] + "..."
}
