package worker

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routesFunc func() map[string]asynq.HandlerFunc

func (f routesFunc) Routes() map[string]asynq.HandlerFunc { return f() }

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid config", cfg: &Config{Concurrency: 5}},
		{name: "invalid config - zero concurrency", cfg: &Config{Concurrency: 0}, wantErr: true},
		{name: "invalid config - negative concurrency", cfg: &Config{Concurrency: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(logrus.New(), tt.cfg, &asynq.RedisClientOpt{Addr: "localhost:6379"},
				routesFunc(func() map[string]asynq.HandlerFunc { return nil }), []string{"InterestByRegion"})

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConcurrency)
				assert.Nil(t, svc)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestQueues(t *testing.T) {
	assert.Equal(t, map[string]int{
		"harvest-InterestByRegion": 1,
		"harvest-InterestOverTime": 1,
	}, Queues([]string{"InterestByRegion", "InterestOverTime"}))
}

func TestFilteredTables(t *testing.T) {
	all := []string{"a", "b", "c"}

	assert.Equal(t, all, filteredTables(all, nil))
	assert.Equal(t, []string{"a", "c"}, filteredTables(all, []string{"c", "a", "zzz"}))
}
