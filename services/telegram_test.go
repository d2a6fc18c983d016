package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"heartlung/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestTelegram(clock *fakeClock) (*TelegramService, *fakeSender) {
	sender := &fakeSender{}
	ts := newTelegramService(sender, 42, 15*time.Second, zap.NewNop())
	ts.now = clock.Now
	return ts, sender
}

func drain(ts *TelegramService) []string {
	var out []string
	for {
		select {
		case text := <-ts.outbox:
			out = append(out, text)
		default:
			return out
		}
	}
}

func TestTelegram_AnomalyAlertThrottled(t *testing.T) {
	clock := newFakeClock()
	ts, _ := newTestTelegram(clock)
	anomalies := []*models.Anomaly{{Type: models.HeartRateOutOfRange, Description: "Heart rate 190 bpm exceeds maximum of 180 bpm"}}

	require.NoError(t, ts.SendAnomalyAlert(anomalies, healthySample()))
	clock.Advance(5 * time.Second)
	require.NoError(t, ts.SendAnomalyAlert(anomalies, healthySample()))
	clock.Advance(11 * time.Second)
	require.NoError(t, ts.SendAnomalyAlert(anomalies, healthySample()))

	msgs := drain(ts)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "VITALS ALERT")
	assert.Contains(t, msgs[0], "Heart Rate Alert")
	assert.Contains(t, msgs[0], "Heart rate 190 bpm")
}

func TestTelegram_EmptyAnomaliesIgnored(t *testing.T) {
	ts, _ := newTestTelegram(newFakeClock())

	require.NoError(t, ts.SendAnomalyAlert(nil, healthySample()))
	require.NoError(t, ts.SendLevelAlert(nil))
	assert.Empty(t, drain(ts))
}

func TestTelegram_NotifyEventFiltersSeverity(t *testing.T) {
	clock := newFakeClock()
	ts, _ := newTestTelegram(clock)

	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityInfo, "[COM] ready"))
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeveritySuccess, "Level: NORMAL sent to device"))
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityAlarm, "Air <bubble> detected"))
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityAlarm, "Air <bubble> detected"))
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityError, "Serial reader error: EOF"))

	msgs := drain(ts)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "DEVICE ALARM")
	assert.Contains(t, msgs[0], "Air &lt;bubble&gt; detected")
	assert.Contains(t, msgs[1], "MONITOR ERROR")
}

func TestTelegram_NotifyEventGroupsByMessageClass(t *testing.T) {
	clock := newFakeClock()
	ts, _ := newTestTelegram(clock)

	for _, v := range []string{"x1", "x2", "\x07", "99z"} {
		ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityError, "Parse error: HR="+v))
	}
	assert.Len(t, drain(ts), 1)
	assert.Len(t, ts.lastAlertTimes, 1)

	clock.Advance(16 * time.Second)
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityError, "Parse error: P=oops"))
	assert.Len(t, drain(ts), 1)
}

func TestTelegram_DroppedMessageDoesNotStartWindow(t *testing.T) {
	ts, _ := newTestTelegram(newFakeClock())

	for i := 0; i < alertQueueSize; i++ {
		require.NoError(t, ts.SendStartupMessage(true))
	}
	anomaly := &models.Anomaly{Type: models.LevelOutOfRange, Description: "Level 150 px above 120 px"}
	require.Error(t, ts.SendLevelAlert(anomaly))

	drain(ts)
	require.NoError(t, ts.SendLevelAlert(anomaly))
	msgs := drain(ts)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "RESERVOIR LEVEL ALERT")
}

func TestTelegram_ExpiredKeysPruned(t *testing.T) {
	clock := newFakeClock()
	ts, _ := newTestTelegram(clock)

	for i := 0; i <= throttleKeyLimit; i++ {
		ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityAlarm, fmt.Sprintf("alarm %d", i)))
		drain(ts)
	}
	require.Len(t, ts.lastAlertTimes, throttleKeyLimit+1)

	clock.Advance(time.Minute)
	ts.NotifyEvent(models.NewEvent(clock.Now(), models.SeverityAlarm, "fresh alarm"))
	assert.Len(t, ts.lastAlertTimes, 1)
}

func TestTelegram_LinkAlerts(t *testing.T) {
	clock := newFakeClock()
	ts, _ := newTestTelegram(clock)

	require.NoError(t, ts.SendLinkLostAlert(models.LinkStale, clock.Now().Add(-4*time.Second), 4*time.Second))
	require.NoError(t, ts.SendLinkRecoveredAlert(90*time.Second))

	msgs := drain(ts)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "STALE")
	assert.Contains(t, msgs[0], "4 seconds")
	assert.Contains(t, msgs[1], "1 min 30 sec")
}

func TestTelegram_QueueFullDropsMessage(t *testing.T) {
	ts, _ := newTestTelegram(newFakeClock())

	for i := 0; i < alertQueueSize; i++ {
		require.NoError(t, ts.SendLinkRecoveredAlert(time.Second))
	}
	assert.Error(t, ts.SendLinkRecoveredAlert(time.Second))
}

func TestTelegram_RunDelivers(t *testing.T) {
	ts, sender := newTestTelegram(newFakeClock())
	require.NoError(t, ts.SendStartupMessage(false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.Run(ctx)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, "HTML", sender.sent[0].ParseMode)
	assert.Contains(t, sender.sent[0].Text, "Camera-only mode")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 seconds", formatDuration(45*time.Second))
	assert.Equal(t, "2 min 5 sec", formatDuration(125*time.Second))
	assert.Equal(t, "3 hr 10 min", formatDuration(3*time.Hour+10*time.Minute))
	assert.Equal(t, "2 days 1 hr", formatDuration(49*time.Hour))
}
