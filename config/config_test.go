package config

import (
	"testing"

	"github.com/luxfi/dap-aggregator/messages"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	c := Default(messages.TaskID{1})
	require.NoError(t, c.Validate())
}

func TestValidateCatchesZeroTimePrecision(t *testing.T) {
	c := Default(messages.TaskID{1})
	c.TimePrecision = 0
	require.ErrorIs(t, c.Validate(), ErrInvalidTimePrecision)
}

func TestValidateCatchesExpirationBeforeStart(t *testing.T) {
	c := Default(messages.TaskID{1})
	c.TaskStart = 1000
	c.TaskExpiration = 500
	require.ErrorIs(t, c.Validate(), ErrInvalidExpiration)
}

func TestReportTimeValidWindow(t *testing.T) {
	c := Default(messages.TaskID{1})
	c.ReportStorageEpoch = 1000
	c.MaxFutureSkew = 100
	c.TaskStart = 0
	c.TaskExpiration = 1 << 40

	now := messages.Time(5000)
	require.True(t, c.ReportTimeValid(now, now))
	require.True(t, c.ReportTimeValid(now-1000, now))
	require.False(t, c.ReportTimeValid(now-1001, now))
	require.True(t, c.ReportTimeValid(now+100, now))
	require.False(t, c.ReportTimeValid(now+101, now))
}

func TestBatchWindowQuantizes(t *testing.T) {
	c := Default(messages.TaskID{1})
	c.TimePrecision = 500
	require.Equal(t, messages.Time(1000), c.BatchWindow(1000))
	require.Equal(t, messages.Time(1000), c.BatchWindow(1499))
	require.Equal(t, messages.Time(1500), c.BatchWindow(1500))
}
