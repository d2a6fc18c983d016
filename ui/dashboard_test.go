package ui

import (
	"errors"
	"image"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartlung/models"
)

type staticSource struct {
	snap models.Snapshot
}

func (s *staticSource) Snapshot() models.Snapshot { return s.snap }

type countingToggler struct {
	calls int
	err   error
}

func (c *countingToggler) ToggleSuction() error {
	c.calls++
	return c.err
}

type flagAll struct{}

func (flagAll) OutOfRange(models.TelemetrySample) map[models.AnomalyType]bool {
	return map[models.AnomalyType]bool{models.HeartRateOutOfRange: true}
}

func testCal() models.CalibrationConfig {
	return models.CalibrationConfig{
		ROI:                  image.Rect(200, 180, 400, 380),
		NormalTopFraction:    0.6,
		NormalBottomFraction: 0.4,
	}
}

func liveSnapshot() models.Snapshot {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return models.Snapshot{
		Telemetry: models.TelemetrySample{
			HeartRate:     190,
			Pressure:      12,
			Temperature:   36.9,
			Connected:     true,
			LastHeartbeat: now,
		},
		Level: models.LevelReading{
			CurrentLevelY:  100,
			Classification: models.LevelNormal,
			IsMaintained:   true,
		},
		Events:  []models.Event{models.NewEvent(now, models.SeverityAlarm, "Air bubble detected")},
		History: models.History{HeartRate: []float64{70, 80, 190}},
		TakenAt: now,
	}
}

func TestDashboard_ViewShowsState(t *testing.T) {
	m := New(&staticSource{snap: liveSnapshot()}, nil, flagAll{}, testCal(), 3*time.Second)

	out := m.View()
	assert.Contains(t, out, "Connected")
	assert.Contains(t, out, "190 bpm !")
	assert.Contains(t, out, "NORMAL")
	assert.Contains(t, out, "100 / 200 px")
	assert.Contains(t, out, "Air bubble detected")
	assert.Contains(t, out, "Enable Suction Pump")
}

func TestDashboard_StaleLinkShowsNoData(t *testing.T) {
	snap := liveSnapshot()
	snap.TakenAt = snap.TakenAt.Add(5 * time.Second)
	m := New(&staticSource{snap: snap}, nil, nil, testCal(), 3*time.Second)

	assert.Contains(t, m.View(), "No Data")
}

func TestDashboard_ToggleKey(t *testing.T) {
	toggler := &countingToggler{err: errors.New("device not connected")}
	m := New(&staticSource{snap: liveSnapshot()}, toggler, nil, testCal(), 3*time.Second)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.True(t, m.toggling)

	// a second press while the first is in flight is ignored
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Nil(t, again)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, 1, toggler.calls)
	assert.False(t, m.toggling)
	assert.Contains(t, m.View(), "device not connected")
}

func TestDashboard_QuitKey(t *testing.T) {
	m := New(&staticSource{snap: liveSnapshot()}, nil, nil, testCal(), 3*time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestDashboard_TickRefreshesSnapshot(t *testing.T) {
	src := &staticSource{snap: liveSnapshot()}
	m := New(src, nil, nil, testCal(), 3*time.Second)

	src.snap.Telemetry.SuctionOn = true
	next, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Contains(t, next.View(), "Disable Suction Pump")
}
