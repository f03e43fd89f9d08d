package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

func TestStartDisabledRegistersNothing(t *testing.T) {
	svc := NewService(nil, &common.SchedulerConfig{
		Enabled: false,
		Entries: []common.ScheduleEntry{{Schedule: "not a schedule", Datasource: "KBASE"}},
	}, arbor.NewLogger())

	require.NoError(t, svc.Start())
	assert.Empty(t, svc.cron.Entries())
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	svc := NewService(nil, &common.SchedulerConfig{
		Enabled: true,
		Entries: []common.ScheduleEntry{{Schedule: "not a schedule", Datasource: "KBASE"}},
	}, arbor.NewLogger())

	err := svc.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a schedule")
}

func TestStartRegistersEntries(t *testing.T) {
	svc := NewService(nil, &common.SchedulerConfig{
		Enabled: true,
		Entries: []common.ScheduleEntry{
			{Schedule: "0 2 * * *", Datasource: "KBASE"},
			{Schedule: "30 3 * * *", Datasource: "WIKI", ConnectionID: "wiki-main"},
		},
	}, arbor.NewLogger())

	require.NoError(t, svc.Start())
	defer svc.Stop()
	assert.Len(t, svc.cron.Entries(), 2)
}
