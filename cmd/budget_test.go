//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

func TestWorkflowsForFlag(t *testing.T) {
	both, err := workflowsForFlag("")
	require.NoError(t, err)
	assert.Equal(t, []model.Workflow{model.WorkflowIntent, model.WorkflowGeography}, both)

	one, err := workflowsForFlag("geography")
	require.NoError(t, err)
	assert.Equal(t, []model.Workflow{model.WorkflowGeography}, one)

	_, err = workflowsForFlag("outbound")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow")
}

func TestFormatBudgetStatus(t *testing.T) {
	states := []model.BudgetState{
		{Workflow: model.WorkflowIntent, PeriodKey: "2026-W35", Cap: 500, Used: 450, Remaining: 50},
		{Workflow: model.WorkflowGeography, PeriodKey: "2026-W35", Cap: 500, Used: 0, Remaining: 500},
	}

	var buf bytes.Buffer
	formatBudgetStatus(&buf, states)

	output := buf.String()
	assert.Contains(t, output, "WORKFLOW")
	assert.Contains(t, output, "REMAINING")
	assert.Contains(t, output, "intent")
	assert.Contains(t, output, "2026-W35")
	assert.Contains(t, output, "450")
	assert.Contains(t, output, "90%")
	assert.Contains(t, output, "0%")
}

func TestFormatUsageLog(t *testing.T) {
	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	records := []model.CreditUsageRecord{
		{ID: "11111111-aaaa", Timestamp: ts, Workflow: model.WorkflowIntent, CreditsUsed: 40, PeriodKey: "2026-W35"},
		{ID: "22222222-bbbb", Timestamp: ts.Add(time.Hour), Workflow: model.WorkflowIntent, CreditsUsed: 25, PeriodKey: "2026-W35"},
	}

	var buf bytes.Buffer
	formatUsageLog(&buf, records)

	output := buf.String()
	assert.Contains(t, output, "TIMESTAMP")
	assert.Contains(t, output, "2026-08-25T09:00:00Z")
	assert.Contains(t, output, "11111111")
	assert.Contains(t, output, "40")
	assert.Contains(t, output, "25")
	assert.Contains(t, output, "TOTAL")
	assert.Contains(t, output, "65")
}
