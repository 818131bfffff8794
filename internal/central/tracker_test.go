package central_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blekit/gattc/internal/central"
)

// orderedReleasable records its release order on a shared log.
type orderedReleasable struct {
	name string
	log  *[]string
}

func (r *orderedReleasable) Release() {
	*r.log = append(*r.log, r.name)
}

func TestTrackerIdentityDeduplication(t *testing.T) {
	// GOAL: Verify registration deduplicates by object identity, not value.

	tracker := central.NewResourceTracker(quietLogger())
	var log []string

	a := &orderedReleasable{name: "a", log: &log}
	aTwin := &orderedReleasable{name: "a", log: &log}

	tracker.Track("dev", a)
	tracker.Track("dev", a)
	assert.Equal(t, 1, tracker.Count("dev"), "same instance twice MUST be a no-op")

	tracker.Track("dev", aTwin)
	assert.Equal(t, 2, tracker.Count("dev"), "equal value, distinct instance MUST be tracked")
}

func TestTrackerReleaseAll(t *testing.T) {
	// GOAL: Verify release order, set clearing, and the empty no-op.

	tracker := central.NewResourceTracker(quietLogger())
	var log []string

	tracker.Track("dev", &orderedReleasable{name: "first", log: &log})
	tracker.Track("dev", &orderedReleasable{name: "second", log: &log})
	tracker.Track("dev", &orderedReleasable{name: "third", log: &log})
	tracker.Track("other", &orderedReleasable{name: "untouched", log: &log})

	tracker.ReleaseAll("dev")
	assert.Equal(t, []string{"first", "second", "third"}, log, "release MUST follow tracking order")
	assert.Zero(t, tracker.Count("dev"))
	assert.Equal(t, 1, tracker.Count("other"), "other devices MUST be unaffected")

	// Released set is cleared: a second pass releases nothing.
	tracker.ReleaseAll("dev")
	assert.Len(t, log, 3)

	// Unknown identifier is a safe no-op.
	assert.NotPanics(t, func() { tracker.ReleaseAll("never-seen") })
}

func TestTrackerNilObject(t *testing.T) {
	// GOAL: Verify a nil registration fails fast as a programming error.

	tracker := central.NewResourceTracker(quietLogger())
	assert.Panics(t, func() { tracker.Track("dev", nil) })
}
