package detect

import (
	"fmt"
	"sync"

	"github.com/palletscan/palletscan/pkg/log"
)

// LoaderFunc builds a detector for a model path and threshold
type LoaderFunc func(modelPath string, threshold float64) (Detector, error)

type slotKey struct {
	modelPath string
	threshold float64
}

// Slot is the process-wide single-instance holder for the loaded
// model. Loading is expensive and memory-heavy, so at most one
// detector lives at a time: a request with the cached key returns the
// same instance, a different key evicts and rebuilds.
type Slot struct {
	mu     sync.Mutex
	loader LoaderFunc
	onLoad func(modelPath string, rebuilt bool)
	key    slotKey
	det    Detector
	loads  int
}

// NewSlot creates an empty model slot around the given loader
func NewSlot(loader LoaderFunc) *Slot {
	return &Slot{loader: loader}
}

// OnLoad registers a callback invoked after every successful load.
// rebuilt is true when a previous model was evicted first. The
// callback runs under the slot lock and must not call back into the
// slot.
func (s *Slot) OnLoad(fn func(modelPath string, rebuilt bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = fn
}

// Get returns the detector for the key, loading or rebuilding as
// needed. Safe for concurrent use; concurrent first callers serialize
// on the load.
func (s *Slot) Get(modelPath string, threshold float64) (Detector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{modelPath: modelPath, threshold: threshold}
	if s.det != nil && s.key == key {
		return s.det, nil
	}

	logger := log.WithComponent("detect")
	rebuilt := false
	if s.det != nil {
		rebuilt = true
		logger.Info().
			Str("model_path", modelPath).
			Float64("threshold", threshold).
			Msg("Model key changed, rebuilding")
		if err := s.det.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close previous model")
		}
		s.det = nil
	}

	det, err := s.loader(modelPath, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", modelPath, err)
	}

	s.det = det
	s.key = key
	s.loads++
	logger.Info().Str("model_path", modelPath).Float64("threshold", threshold).Msg("Model loaded")
	if s.onLoad != nil {
		s.onLoad(modelPath, rebuilt)
	}
	return s.det, nil
}

// Loads reports how many times the loader has run
func (s *Slot) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Close releases the cached detector, if any
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return nil
	}
	err := s.det.Close()
	s.det = nil
	return err
}
