package services

import (
	"fmt"
	"strconv"
	"strings"

	"heartlung/models"
)

const (
	statusMarker = "[STATUS]"
	alarmMarker  = "ALARM:"
	comMarker    = "[COM]"
)

// LineKind is what a received line means to the reader
type LineKind int

const (
	LineIgnored LineKind = iota
	LineStatus
	LineAlarm
	LineCom
)

// ClassifyLine decides how a trimmed line is handled. Status takes precedence
// over the alarm and communication markers.
func ClassifyLine(line string) LineKind {
	switch {
	case strings.HasPrefix(line, statusMarker):
		return LineStatus
	case strings.Contains(line, alarmMarker):
		return LineAlarm
	case strings.Contains(line, comMarker):
		return LineCom
	default:
		return LineIgnored
	}
}

// ParseStatusLine tokenizes a status line into key=value pairs and converts
// each recognized key on its own. Tokens that fail are reported and left out
// of the update. With stopOnError the remaining tokens after the first
// failure are skipped, while the ones before it stay in the update.
func ParseStatusLine(line string, stopOnError bool) (models.TelemetryUpdate, []error) {
	var update models.TelemetryUpdate
	var errs []error

	body := strings.TrimPrefix(line, statusMarker)
	for _, token := range strings.Fields(body) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			errs = append(errs, fmt.Errorf("%w: malformed token %q", models.ErrParse, token))
			if stopOnError {
				break
			}
			continue
		}

		if err := applyToken(&update, key, value); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q: %v", models.ErrParse, key, value, err))
			if stopOnError {
				break
			}
		}
	}

	return update, errs
}

func applyToken(u *models.TelemetryUpdate, key, value string) error {
	switch key {
	case "HR":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		u.HeartRate = &f
	case "P":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		u.Pressure = &f
	case "Bval":
		i, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		u.BubbleValue = &i
	case "Sval":
		i, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		u.SpO2Value = &i
	case "T":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		u.Temperature = &f
	case "Alarm":
		b, err := parseFlag(value, "YES", "NO")
		if err != nil {
			return err
		}
		u.AlarmActive = &b
	case "Suction":
		b, err := parseFlag(value, "ON", "OFF")
		if err != nil {
			return err
		}
		u.SuctionOn = &b
	}
	// unknown keys are ignored; newer firmware may add fields
	return nil
}

func parseFlag(value, on, off string) (bool, error) {
	switch strings.ToUpper(value) {
	case on:
		return true, nil
	case off:
		return false, nil
	}
	return false, fmt.Errorf("expected %s or %s", on, off)
}

// alarmText strips the alarm marker from an alarm line
func alarmText(line string) string {
	return strings.TrimSpace(strings.Replace(line, alarmMarker, "", 1))
}
