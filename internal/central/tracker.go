package central

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blekit/gattc/internal/transport"
)

// ResourceTracker records, per device identifier, the transport-level
// handles opened on behalf of that device so they can be released en masse
// on disconnect. Registration is idempotent by object identity.
type ResourceTracker struct {
	mu      sync.Mutex
	tracked map[string][]transport.Releasable
	logger  *logrus.Logger
}

// NewResourceTracker creates an empty tracker.
func NewResourceTracker(logger *logrus.Logger) *ResourceTracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &ResourceTracker{
		tracked: make(map[string][]transport.Releasable),
		logger:  logger,
	}
}

// Track registers obj under the device identifier. Registering the same
// object instance twice is a no-op; distinct instances of equal value are
// tracked separately. A nil object is a programming error.
func (t *ResourceTracker) Track(deviceID string, obj transport.Releasable) {
	if obj == nil {
		panic("tracker: nil releasable")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, o := range t.tracked[deviceID] {
		if o == obj {
			return
		}
	}
	t.tracked[deviceID] = append(t.tracked[deviceID], obj)
}

// ReleaseAll releases every handle tracked for the identifier in the order
// tracked and clears the set. Safe to call when nothing is tracked.
func (t *ResourceTracker) ReleaseAll(deviceID string) {
	t.mu.Lock()
	objs := t.tracked[deviceID]
	delete(t.tracked, deviceID)
	t.mu.Unlock()

	if len(objs) == 0 {
		return
	}

	for _, o := range objs {
		o.Release()
	}

	t.logger.WithFields(logrus.Fields{
		"device":   deviceID,
		"released": len(objs),
	}).Debug("Released tracked transport handles")
}

// Count returns the number of handles tracked for the identifier.
func (t *ResourceTracker) Count(deviceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked[deviceID])
}
