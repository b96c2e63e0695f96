package clocktest_test

import (
	"testing"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock/clocktest"
	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	var fired []string

	clk.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clk.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	clk.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	clk.Advance(3 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, []time.Duration{2 * time.Second}, clk.Pending())
	assert.Equal(t, time.Unix(3, 0), clk.Now())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.Empty(t, clk.Pending())
}

func TestFake_TimerScheduledFromCallback(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		clk.AfterFunc(time.Second, tick)
	}
	clk.AfterFunc(time.Second, tick)

	clk.Advance(3 * time.Second)
	assert.Equal(t, 3, count)
}
