package traffic

import (
	"errors"
	"sync"
)

// DefaultCapacity bounds concurrent verification requests.
const DefaultCapacity = 50

// ErrOverloaded signals that admission was refused because all verification
// slots are taken. Callers must not retry in a tight loop.
var ErrOverloaded = errors.New("verification capacity exhausted")

// #region backpressure

// Backpressure is the admission gate for concurrent verifications. Acquire
// fails immediately at capacity; there is no queue and no wait.
type Backpressure struct {
	mu       sync.Mutex
	capacity int
	active   int
}

// NewBackpressure builds an admission gate. A non-positive capacity falls
// back to the default.
func NewBackpressure(capacity int) *Backpressure {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Backpressure{capacity: capacity}
}

// Acquire claims a verification slot or returns ErrOverloaded. Every
// successful Acquire must be paired with exactly one Release.
func (b *Backpressure) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active >= b.capacity {
		return ErrOverloaded
	}
	b.active++
	return nil
}

// Release frees a slot. It never underflows the counter.
func (b *Backpressure) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active > 0 {
		b.active--
	}
}

// #endregion backpressure

// #region status

// BackpressureStatus is an observability snapshot of the admission gate.
type BackpressureStatus struct {
	Active      int     `json:"active_requests"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
	Label       string  `json:"label"`
}

// Status reports current slot usage. The label buckets are observability
// only; enforcement is strictly capacity-based.
func (b *Backpressure) Status() BackpressureStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	util := float64(b.active) / float64(b.capacity)
	label := "OK"
	switch {
	case util >= 1.0:
		label = "OVERLOAD"
	case util >= 0.8:
		label = "WARNING"
	}
	return BackpressureStatus{
		Active:      b.active,
		Capacity:    b.capacity,
		Utilization: util,
		Label:       label,
	}
}

// #endregion status
