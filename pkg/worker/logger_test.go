package worker

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsynqLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	l := newAsynqLogger(log)
	l.Info("server ", "started")
	l.Warn("lease lost")

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "server started", entries[0].Message)
	assert.Equal(t, "asynq", entries[0].Data["component"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
}
