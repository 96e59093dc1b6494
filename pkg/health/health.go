package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/palletscan/palletscan/pkg/types"
)

// Component is one leg of the aggregate health check
type Component struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Report is the aggregate outcome. Status is healthy iff every leg is.
type Report struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Checker probes one dependency
type Checker interface {
	Name() string
	Check(ctx context.Context) Component
}

// Aggregate runs every checker and folds the results
func Aggregate(ctx context.Context, checkers ...Checker) *Report {
	report := &Report{
		Status:     "healthy",
		Components: make(map[string]Component, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}
	for _, c := range checkers {
		comp := c.Check(ctx)
		report.Components[c.Name()] = comp
		if !comp.Healthy {
			report.Status = "unhealthy"
		}
	}
	return report
}

// storeHealth is the slice of the result store the checker needs
type storeHealth interface {
	HealthCheck(ctx context.Context) *types.HealthReport
}

// StoreChecker probes the result store
type StoreChecker struct {
	store storeHealth
}

func NewStoreChecker(store storeHealth) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) Component {
	report := c.store.HealthCheck(ctx)
	return Component{
		Name:    c.Name(),
		Healthy: report.Status == "healthy",
		Detail:  report.Error,
	}
}

// busInspect is the slice of the bus the checker needs
type busInspect interface {
	InspectWorkers() (messages int, consumers int, err error)
}

// BusChecker probes the message bus. Healthy means the queue is
// reachable and at least one worker is attached.
type BusChecker struct {
	bus busInspect
}

func NewBusChecker(bus busInspect) *BusChecker {
	return &BusChecker{bus: bus}
}

func (c *BusChecker) Name() string { return "bus" }

func (c *BusChecker) Check(_ context.Context) Component {
	messages, consumers, err := c.bus.InspectWorkers()
	if err != nil {
		return Component{Name: c.Name(), Healthy: false, Detail: err.Error()}
	}
	if consumers < 1 {
		return Component{
			Name:    c.Name(),
			Healthy: false,
			Detail:  fmt.Sprintf("no active workers, %d messages queued", messages),
		}
	}
	return Component{
		Name:    c.Name(),
		Healthy: true,
		Detail:  fmt.Sprintf("%d workers, %d messages queued", consumers, messages),
	}
}

// DirsChecker verifies the working directories exist
type DirsChecker struct {
	dirs []string
}

func NewDirsChecker(dirs ...string) *DirsChecker {
	return &DirsChecker{dirs: dirs}
}

func (c *DirsChecker) Name() string { return "directories" }

func (c *DirsChecker) Check(_ context.Context) Component {
	for _, dir := range c.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return Component{
				Name:    c.Name(),
				Healthy: false,
				Detail:  fmt.Sprintf("missing directory %s", dir),
			}
		}
	}
	return Component{Name: c.Name(), Healthy: true}
}
