package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Add(25)
	tracker.Add(25)
	tracker.Add(50)
	time.Sleep(time.Millisecond)

	assert.Equal(t, 100, tracker.Done())
	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "100/100", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
}

func TestProgressTracker_Interval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 30)

	tracker.Start()
	tracker.Add(10)
	tracker.Add(10)
	assert.Empty(t, buf.String(), "below interval nothing is reported")

	tracker.Add(10)
	assert.Contains(t, buf.String(), "30/100")
	assert.Equal(t, 1, strings.Count(buf.String(), "\r"))
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	tracker := NewProgressTracker(nil, 10, 1)
	tracker.Start()
	tracker.Add(25)
	assert.Equal(t, 10, tracker.Done())
}

func TestProgressTracker_FinishKeepsCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 1000)

	tracker.Start()
	tracker.Add(75)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100", "an aborted run reports how far it got")
	assert.Contains(t, output, "75.0%")
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should print newline")

	tracker.Add(10)
	assert.Equal(t, 75, tracker.Done(), "updates after finish are ignored")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 1)

	tracker.Add(50)
	tracker.Finish()

	assert.Empty(t, buf.String(), "should not output if not started")
	assert.Zero(t, tracker.Done())
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 1)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0")
	assert.Contains(t, buf.String(), "100.0%")
}
