package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/palletscan/palletscan/pkg/types"
)

type stubStore struct {
	report *types.HealthReport
}

func (s *stubStore) HealthCheck(context.Context) *types.HealthReport { return s.report }

type stubBus struct {
	messages  int
	consumers int
	err       error
}

func (s *stubBus) InspectWorkers() (int, int, error) { return s.messages, s.consumers, s.err }

func TestAggregateAllHealthy(t *testing.T) {
	store := &stubStore{report: &types.HealthReport{Status: "healthy", Timestamp: time.Now()}}
	bus := &stubBus{messages: 3, consumers: 2}
	dirs := NewDirsChecker(t.TempDir())

	report := Aggregate(context.Background(), NewStoreChecker(store), NewBusChecker(bus), dirs)

	assert.Equal(t, "healthy", report.Status)
	assert.Len(t, report.Components, 3)
	assert.True(t, report.Components["store"].Healthy)
	assert.True(t, report.Components["bus"].Healthy)
	assert.True(t, report.Components["directories"].Healthy)
}

func TestAggregateUnhealthyOnAnyLeg(t *testing.T) {
	store := &stubStore{report: &types.HealthReport{Status: "unhealthy", Error: "connection refused"}}
	bus := &stubBus{consumers: 1}

	report := Aggregate(context.Background(), NewStoreChecker(store), NewBusChecker(bus))

	assert.Equal(t, "unhealthy", report.Status)
	assert.False(t, report.Components["store"].Healthy)
	assert.Equal(t, "connection refused", report.Components["store"].Detail)
	assert.True(t, report.Components["bus"].Healthy)
}

func TestBusCheckerRequiresWorkers(t *testing.T) {
	comp := NewBusChecker(&stubBus{messages: 10, consumers: 0}).Check(context.Background())
	assert.False(t, comp.Healthy)
	assert.Contains(t, comp.Detail, "no active workers")

	comp = NewBusChecker(&stubBus{err: errors.New("channel closed")}).Check(context.Background())
	assert.False(t, comp.Healthy)
}

func TestDirsCheckerMissingDirectory(t *testing.T) {
	comp := NewDirsChecker(t.TempDir(), "/definitely/not/here").Check(context.Background())
	assert.False(t, comp.Healthy)
	assert.Contains(t, comp.Detail, "/definitely/not/here")
}
