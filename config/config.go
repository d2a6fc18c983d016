package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"heartlung/models"

	"github.com/joho/godotenv"
)

// Parse modes for status lines
const (
	ParseModeIsolate = "isolate"
	ParseModeLegacy  = "legacy"
)

// VitalLimits are the safe bands used to flag vitals on the dashboard and in alerts
type VitalLimits struct {
	HeartRateMin   float64
	HeartRateMax   float64
	PressureMin    float64
	PressureMax    float64
	BubbleMin      int
	SpO2Min        int
	SpO2Max        int
	TemperatureMin float64
	TemperatureMax float64
}

type Config struct {
	// Serial link to the microcontroller
	SerialPort             string
	SerialBaud             int
	SerialReadTimeout      time.Duration
	SerialSettleDelay      time.Duration
	SerialIdlePoll         time.Duration
	SerialDisconnectedPoll time.Duration
	HeartbeatTimeout       time.Duration
	TelemetryParseMode     string

	// Camera
	CameraIndex   int
	CameraWidth   int
	CameraHeight  int
	FrameInterval time.Duration

	// Level detection
	Calibration models.CalibrationConfig

	// Bookkeeping
	EventLogCapacity int
	HistoryCapacity  int

	Vitals VitalLimits

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string

	UIEnabled bool

	// Telegram alerts (optional)
	TelegramBotToken string
	TelegramChatID   string
	AlertThrottle    time.Duration

	// RabbitMQ event forwarding (optional)
	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string
	EventBatchSize     int
	EventBatchTimeout  time.Duration

	// MQTT snapshot publishing (optional)
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicPrefix  string
	SnapshotInterval time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		SerialPort:             getEnv("SERIAL_PORT", "/dev/ttyACM0"),
		SerialBaud:             getEnvInt("SERIAL_BAUD", 115200),
		SerialReadTimeout:      getEnvDuration("SERIAL_READ_TIMEOUT", 20*time.Millisecond),
		SerialSettleDelay:      getEnvDuration("SERIAL_SETTLE_DELAY", 2500*time.Millisecond),
		SerialIdlePoll:         getEnvDuration("SERIAL_IDLE_POLL", 10*time.Millisecond),
		SerialDisconnectedPoll: getEnvDuration("SERIAL_DISCONNECTED_POLL", time.Second),
		HeartbeatTimeout:       getEnvDuration("HEARTBEAT_TIMEOUT", 3*time.Second),
		TelemetryParseMode:     strings.ToLower(getEnv("TELEMETRY_PARSE_MODE", ParseModeIsolate)),

		CameraIndex:   getEnvInt("CAMERA_INDEX", 0),
		CameraWidth:   getEnvInt("CAMERA_WIDTH", 640),
		CameraHeight:  getEnvInt("CAMERA_HEIGHT", 480),
		FrameInterval: getEnvDuration("FRAME_INTERVAL", 30*time.Millisecond),

		Calibration: models.CalibrationConfig{
			ROI: image.Rect(
				getEnvInt("ROI_X_START", 200),
				getEnvInt("ROI_Y_START", 180),
				getEnvInt("ROI_X_END", 400),
				getEnvInt("ROI_Y_END", 380),
			),
			Ranges: [2]models.HSVRange{
				{
					Lower: getEnvTriple("HSV_LOWER_1", [3]float64{0, 120, 70}),
					Upper: getEnvTriple("HSV_UPPER_1", [3]float64{10, 255, 255}),
				},
				{
					Lower: getEnvTriple("HSV_LOWER_2", [3]float64{170, 120, 70}),
					Upper: getEnvTriple("HSV_UPPER_2", [3]float64{180, 255, 255}),
				},
			},
			NormalTopFraction:    getEnvFloat("NORMAL_RANGE_TOP_PC", 0.60),
			NormalBottomFraction: getEnvFloat("NORMAL_RANGE_BOTTOM_PC", 0.40),
			KernelSize:           getEnvInt("MORPH_KERNEL_SIZE", 5),
			MaintenanceThreshold: getEnvDuration("MAINTENANCE_TIME_THRESHOLD", time.Second),
			Mirror:               getEnvBool("MIRROR_CAMERA", true),
		},

		EventLogCapacity: getEnvInt("EVENT_LOG_CAPACITY", 20),
		HistoryCapacity:  getEnvInt("HISTORY_CAPACITY", 50),

		// Default bands match the bedside dashboard
		Vitals: VitalLimits{
			HeartRateMin:   getEnvFloat("HR_MIN", 40),
			HeartRateMax:   getEnvFloat("HR_MAX", 180),
			PressureMin:    getEnvFloat("PRESSURE_MIN", 8),
			PressureMax:    getEnvFloat("PRESSURE_MAX", 20),
			BubbleMin:      getEnvInt("BUBBLE_MIN", 300),
			SpO2Min:        getEnvInt("SPO2_MIN", 30),
			SpO2Max:        getEnvInt("SPO2_MAX", 230),
			TemperatureMin: getEnvFloat("TEMPERATURE_MIN", 36.5),
			TemperatureMax: getEnvFloat("TEMPERATURE_MAX", 37.5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogOutput: getEnv("LOG_OUTPUT", "heartlung.log"),

		UIEnabled: getEnvBool("UI_ENABLED", true),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertThrottle:    getEnvDuration("ALERT_THROTTLE", 15*time.Second),

		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "heartlung.events"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "monitor.events"),
		EventBatchSize:     getEnvInt("EVENT_BATCH_SIZE", 10),
		EventBatchTimeout:  getEnvDuration("EVENT_BATCH_TIMEOUT", 5*time.Second),

		MQTTBroker:       getEnv("MQTT_BROKER", ""),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "heartlung-monitor"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "heartlung"),
		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", time.Second),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the detector or the bookkeeping cannot work with
func (c *Config) Validate() error {
	var errs []error

	cal := c.Calibration
	if cal.ROI.Empty() || cal.ROI.Min.X < 0 || cal.ROI.Min.Y < 0 {
		errs = append(errs, fmt.Errorf("invalid ROI %v", cal.ROI))
	}
	if cal.NormalBottomFraction < 0 || cal.NormalTopFraction > 1 || cal.NormalBottomFraction >= cal.NormalTopFraction {
		errs = append(errs, fmt.Errorf("normal range fractions must satisfy 0 <= bottom < top <= 1, got %.2f/%.2f",
			cal.NormalBottomFraction, cal.NormalTopFraction))
	}
	if cal.KernelSize < 1 {
		errs = append(errs, fmt.Errorf("morphological kernel size must be >= 1, got %d", cal.KernelSize))
	}
	if c.EventLogCapacity < 1 || c.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("buffer capacities must be >= 1"))
	}
	if c.TelemetryParseMode != ParseModeIsolate && c.TelemetryParseMode != ParseModeLegacy {
		errs = append(errs, fmt.Errorf("unknown telemetry parse mode %q", c.TelemetryParseMode))
	}
	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"FRAME_INTERVAL", c.FrameInterval},
		{"SERIAL_READ_TIMEOUT", c.SerialReadTimeout},
		{"SERIAL_IDLE_POLL", c.SerialIdlePoll},
		{"SERIAL_DISCONNECTED_POLL", c.SerialDisconnectedPoll},
		{"HEARTBEAT_TIMEOUT", c.HeartbeatTimeout},
		{"EVENT_BATCH_TIMEOUT", c.EventBatchTimeout},
		{"SNAPSHOT_INTERVAL", c.SnapshotInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", iv.name, iv.value))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms") or plain seconds ("1.5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return defaultValue
}

// getEnvTriple parses "h,s,v"
func getEnvTriple(key string, defaultValue [3]float64) [3]float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return defaultValue
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out[i] = f
	}
	return out
}
