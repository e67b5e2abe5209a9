package jobsvc

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loggerMock struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *loggerMock) Debug(string, ...interface{}) {}
func (l *loggerMock) Warn(string, ...interface{})  {}
func (l *loggerMock) Fatal(string, ...interface{}) {}

func (l *loggerMock) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *loggerMock) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type maintainerMock struct{ expired, reset, purged int }

func (m *maintainerMock) ExpireOverdue(context.Context) (int, error) {
	m.expired++
	return 2, nil
}

func (m *maintainerMock) ResetUsage(context.Context) (int, error) {
	m.reset++
	return 5, nil
}

func (m *maintainerMock) PurgeExpired(context.Context) (int, error) {
	m.purged++
	return 0, errors.New("store down")
}

func TestDefaultJobs(t *testing.T) {
	m := &maintainerMock{}
	jobs := DefaultJobs(m, m)
	require.Len(t, jobs, 3)

	for _, job := range jobs {
		_, err := cron.ParseStandard(job.Schedule)
		assert.NoError(t, err, job.Name)
	}
}

func TestScheduler_run(t *testing.T) {
	m := &maintainerMock{}
	logger := &loggerMock{}
	jobs := DefaultJobs(m, m)
	s, err := NewScheduler(logger, jobs...)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 3)

	for _, job := range jobs {
		s.run(job)
	}
	assert.Equal(t, 1, m.expired)
	assert.Equal(t, 1, m.reset)
	assert.Equal(t, 1, m.purged)
	assert.Equal(t, []string{
		`job "expire overdue subscriptions" done: 2 updated`,
		`job "reset monthly usage" done: 5 updated`,
	}, logger.infos)
	assert.Equal(t, []string{`job "purge assistant sessions" failed`}, logger.errors)

	s.Start()
	assert.NoError(t, s.Stop(context.Background()))
}

func TestNewScheduler_BadSchedule(t *testing.T) {
	_, err := NewScheduler(&loggerMock{}, Job{Name: "bad", Schedule: "every day", Run: func(context.Context) (int, error) { return 0, nil }})
	assert.Error(t, err)
}
