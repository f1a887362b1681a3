//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Workflows: []model.Workflow{model.WorkflowIntent},
			Diagnostics: model.Diagnostics{
				InputCount:        11,
				DuplicatesRemoved: 4,
				KeptCount:         4,
				Budget:            model.Authorization{Allowed: true},
			},
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Workflows: []model.Workflow{model.WorkflowIntent, model.WorkflowGeography},
			Diagnostics: model.Diagnostics{
				InputCount: 30,
				Budget:     model.Authorization{Allowed: false, Reason: "over cap"},
			},
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "WORKFLOWS")
	assert.Contains(t, output, "BUDGET")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "intent, geography")
	assert.Contains(t, output, "2026-08-25 10:30")
	assert.Contains(t, output, "ok")
	assert.Contains(t, output, "denied")
}

func TestComputeRunStats(t *testing.T) {
	runs := []model.Run{
		{
			Diagnostics: model.Diagnostics{
				InputCount:        11,
				KeptCount:         4,
				DuplicatesRemoved: 4,
				ScoringFailures:   []model.LeadFailure{{ContactID: "C-009"}},
				Budget:            model.Authorization{Allowed: true},
			},
		},
		{
			Diagnostics: model.Diagnostics{
				InputCount: 20,
				KeptCount:  0,
				Budget:     model.Authorization{Allowed: false},
			},
		},
	}

	s := computeRunStats(runs)

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Denied)
	assert.Equal(t, 31, s.InputLeads)
	assert.Equal(t, 4, s.KeptLeads)
	assert.Equal(t, 4, s.Duplicates)
	assert.Equal(t, 1, s.Failures)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:      10,
		Denied:     2,
		InputLeads: 200,
		KeptLeads:  80,
		Duplicates: 35,
		Failures:   3,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "10")
	assert.Contains(t, output, "Budget denials:")
	assert.Contains(t, output, "Keep rate:")
	assert.Contains(t, output, "40.0%")
}

func TestFormatRunStats_NoInput(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{})
	assert.NotContains(t, buf.String(), "Keep rate")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}
