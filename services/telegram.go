package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"heartlung/config"
	"heartlung/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// messageSender is the part of *tgbotapi.BotAPI the alert service needs
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

const (
	alertQueueSize   = 32
	throttleKeyLimit = 64
)

// TelegramService relays alerts to an operator chat. Messages are queued and
// sent from Run so producers never wait on the network.
type TelegramService struct {
	sender   messageSender
	chatID   int64
	throttle time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu             sync.Mutex
	lastAlertTimes map[string]time.Time // last send per alert key

	outbox chan string
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return newTelegramService(bot, chatID, cfg.AlertThrottle, logger), nil
}

func newTelegramService(sender messageSender, chatID int64, throttle time.Duration, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		sender:         sender,
		chatID:         chatID,
		throttle:       throttle,
		logger:         logger,
		now:            time.Now,
		lastAlertTimes: make(map[string]time.Time),
		outbox:         make(chan string, alertQueueSize),
	}
}

// Run delivers queued messages until ctx is cancelled
func (ts *TelegramService) Run(ctx context.Context) {
	ts.logger.Info("Telegram alert sender started")
	for {
		select {
		case <-ctx.Done():
			ts.logger.Info("Telegram alert sender stopped", zap.Int("dropped", len(ts.outbox)))
			return
		case text := <-ts.outbox:
			if err := ts.send(text); err != nil {
				ts.logger.Error("Failed to send telegram message", zap.Error(err))
			}
		}
	}
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := ts.sender.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}
	return nil
}

func (ts *TelegramService) enqueue(text string) error {
	select {
	case ts.outbox <- text:
		return nil
	default:
		return fmt.Errorf("telegram queue full, message dropped")
	}
}

// enqueueThrottled queues text unless an alert with the same key went out
// within the throttle window. The key is stamped only when the message is
// actually queued.
func (ts *TelegramService) enqueueThrottled(key, text string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if last, ok := ts.lastAlertTimes[key]; ok && now.Sub(last) < ts.throttle {
		return false, nil
	}
	if err := ts.enqueue(text); err != nil {
		return false, err
	}
	ts.lastAlertTimes[key] = now
	ts.pruneLocked(now)
	return true, nil
}

// pruneLocked forgets keys whose window has passed once the map grows
func (ts *TelegramService) pruneLocked(now time.Time) {
	if len(ts.lastAlertTimes) <= throttleKeyLimit {
		return
	}
	for key, last := range ts.lastAlertTimes {
		if now.Sub(last) >= ts.throttle {
			delete(ts.lastAlertTimes, key)
		}
	}
}

// eventClass groups event messages that differ only in their details, so
// "Parse error: HR=x1" and "Parse error: HR=x2" share one throttle window.
func eventClass(event models.Event) string {
	class := event.Message
	if i := strings.IndexByte(class, ':'); i > 0 {
		class = class[:i]
	}
	return "event:" + string(event.Severity) + ":" + class
}

// SendAnomalyAlert reports out-of-range vitals together with the current readings
func (ts *TelegramService) SendAnomalyAlert(anomalies []*models.Anomaly, sample models.TelemetrySample) error {
	if len(anomalies) == 0 {
		return nil
	}
	queued, err := ts.enqueueThrottled("vitals", formatAnomalyMessage(anomalies, sample, ts.now()))
	if err == nil && !queued {
		ts.logger.Debug("Throttling vitals alert", zap.Int("anomaly_count", len(anomalies)))
	}
	return err
}

// SendLevelAlert reports a reservoir level outside the normal band
func (ts *TelegramService) SendLevelAlert(anomaly *models.Anomaly) error {
	if anomaly == nil {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("🧪 <b>RESERVOIR LEVEL ALERT</b> 🧪\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", ts.now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("   └ %s\n\n", anomaly.Description))
	sb.WriteString("🔴 <b>Status:</b> ATTENTION REQUIRED")
	_, err := ts.enqueueThrottled("level", sb.String())
	return err
}

// NotifyEvent forwards device alarms and errors from the event log
func (ts *TelegramService) NotifyEvent(event models.Event) {
	var header string
	switch event.Severity {
	case models.SeverityAlarm:
		header = "🚨 <b>DEVICE ALARM</b> 🚨"
	case models.SeverityError:
		header = "❌ <b>MONITOR ERROR</b>"
	default:
		return
	}
	text := fmt.Sprintf("%s\n\n🕐 <b>Time:</b> %s\n%s",
		header, event.Timestamp.Format("2006-01-02 15:04:05"), escapeHTML(event.Message))
	if _, err := ts.enqueueThrottled(eventClass(event), text); err != nil {
		ts.logger.Warn("Event alert not queued", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// SendLinkLostAlert reports a quiet or closed serial link
func (ts *TelegramService) SendLinkLostAlert(status models.LinkStatus, lastSeen time.Time, silence time.Duration) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>TELEMETRY LINK LOST</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("📡 <b>Link:</b> %s\n", status))
	if !lastSeen.IsZero() {
		sb.WriteString(fmt.Sprintf("🕐 <b>Last Status Line:</b> %s\n", lastSeen.Format("2006-01-02 15:04:05")))
		sb.WriteString(fmt.Sprintf("⏱️ <b>Silence:</b> %s\n\n", formatDuration(silence)))
	}

	sb.WriteString("💡 <b>Action Required:</b>\n")
	if status == models.LinkDisconnected {
		sb.WriteString("The serial link was closed. Check the cable and restart the monitor to reconnect.\n\n")
	} else {
		sb.WriteString("The device stopped reporting vitals. Check the controller board.\n\n")
	}
	sb.WriteString("🔴 <b>Status:</b> " + string(status))

	return ts.enqueue(sb.String())
}

// SendLinkRecoveredAlert reports telemetry flowing again
func (ts *TelegramService) SendLinkRecoveredAlert(downFor time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>TELEMETRY RESUMED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", ts.now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downFor)))
	sb.WriteString("🟢 <b>Status:</b> LIVE")

	return ts.enqueue(sb.String())
}

// SendStartupMessage announces the monitor and the mode it runs in
func (ts *TelegramService) SendStartupMessage(serialConnected bool) error {
	link := "🔌 Serial telemetry connected\n"
	if !serialConnected {
		link = "📷 Camera-only mode (no serial link)\n"
	}
	message := "🟢 <b>Heart-Lung Monitor Started</b>\n\n" +
		link +
		"🤖 Telegram notifications active\n" +
		"👀 Watching reservoir level and vitals..."

	return ts.enqueue(message)
}

func formatAnomalyMessage(anomalies []*models.Anomaly, s models.TelemetrySample, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("🚨 <b>VITALS ALERT</b> 🚨\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", now.Format("2006-01-02 15:04:05")))

	sb.WriteString("📊 <b>Current Readings:</b>\n")
	sb.WriteString(fmt.Sprintf("💓 HR: %.0f bpm\n", s.HeartRate))
	sb.WriteString(fmt.Sprintf("🩸 Pressure: %.1f\n", s.Pressure))
	sb.WriteString(fmt.Sprintf("💧 Bubble: %d\n", s.BubbleValue))
	sb.WriteString(fmt.Sprintf("🫁 SpO2: %d\n", s.SpO2Value))
	sb.WriteString(fmt.Sprintf("🌡️ Temperature: %.1f°C\n\n", s.Temperature))

	sb.WriteString("⚠️ <b>Detected Issues:</b>\n")
	for i, anomaly := range anomalies {
		sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", anomaly.GetAnomalyEmoji(), getAnomalyTitle(anomaly)))
		sb.WriteString(fmt.Sprintf("   └ %s\n", anomaly.Description))
		if i < len(anomalies)-1 {
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n🔴 <b>Status:</b> ATTENTION REQUIRED")
	return sb.String()
}

func getAnomalyTitle(anomaly *models.Anomaly) string {
	switch anomaly.Type {
	case models.HeartRateOutOfRange:
		return "Heart Rate Alert"
	case models.PressureOutOfRange:
		return "Line Pressure Alert"
	case models.BubbleValueLow:
		return "Air Bubble Alert"
	case models.SpO2OutOfRange:
		return "Oxygen Saturation Alert"
	case models.TemperatureOutOfRange:
		return "Temperature Alert"
	case models.LevelOutOfRange:
		return "Reservoir Level Alert"
	default:
		return "Vitals Alert"
	}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
