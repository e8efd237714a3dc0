package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestRealClock(t *testing.T) {
	t.Parallel()

	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestMockClock(t *testing.T) {
	t.Parallel()

	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch, c.Now(), "zero step leaves time fixed")

	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
	assert.Equal(t, time.Minute, c.Since(epoch))

	c.Set(epoch)
	assert.Equal(t, epoch, c.Now())
}

func TestSteppingClock(t *testing.T) {
	t.Parallel()

	c := NewSteppingClock(epoch, time.Second)
	first := c.Now()
	second := c.Now()
	assert.Equal(t, epoch, first)
	assert.Equal(t, epoch.Add(time.Second), second)
	assert.Equal(t, 2*time.Second, c.Since(epoch))
}

func TestMockClockSleep(t *testing.T) {
	t.Parallel()

	c := NewMockClock(epoch)
	c.Sleep(20 * time.Millisecond)
	c.Sleep(40 * time.Millisecond)

	assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond}, c.Sleeps())
	assert.Equal(t, epoch.Add(60*time.Millisecond), c.Now())

	sleeps := c.Sleeps()
	sleeps[0] = 0
	assert.Equal(t, 20*time.Millisecond, c.Sleeps()[0])
}
