package services

import (
	"fmt"
	"time"

	"heartlung/config"
	"heartlung/models"
)

// VitalsChecker compares telemetry and level readings against the configured safe bands
type VitalsChecker struct {
	limits config.VitalLimits
}

func NewVitalsChecker(cfg *config.Config) *VitalsChecker {
	return &VitalsChecker{
		limits: cfg.Vitals,
	}
}

// Check returns one anomaly per vital outside its band
func (vc *VitalsChecker) Check(s models.TelemetrySample, now time.Time) []*models.Anomaly {
	var anomalies []*models.Anomaly
	l := vc.limits

	// Heart rate
	if s.HeartRate < l.HeartRateMin {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.HeartRateOutOfRange,
			Value:       s.HeartRate,
			Threshold:   l.HeartRateMin,
			Timestamp:   now,
			Description: fmt.Sprintf("Heart rate %.0f bpm is below minimum of %.0f bpm", s.HeartRate, l.HeartRateMin),
		})
	}
	if s.HeartRate > l.HeartRateMax {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.HeartRateOutOfRange,
			Value:       s.HeartRate,
			Threshold:   l.HeartRateMax,
			Timestamp:   now,
			Description: fmt.Sprintf("Heart rate %.0f bpm exceeds maximum of %.0f bpm", s.HeartRate, l.HeartRateMax),
		})
	}

	// Line pressure
	if s.Pressure < l.PressureMin {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.PressureOutOfRange,
			Value:       s.Pressure,
			Threshold:   l.PressureMin,
			Timestamp:   now,
			Description: fmt.Sprintf("Pressure %.1f is below minimum of %.1f", s.Pressure, l.PressureMin),
		})
	}
	if s.Pressure > l.PressureMax {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.PressureOutOfRange,
			Value:       s.Pressure,
			Threshold:   l.PressureMax,
			Timestamp:   now,
			Description: fmt.Sprintf("Pressure %.1f exceeds maximum of %.1f", s.Pressure, l.PressureMax),
		})
	}

	// Bubble sensor reads low when air is in the line
	if s.BubbleValue < l.BubbleMin {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.BubbleValueLow,
			Value:       float64(s.BubbleValue),
			Threshold:   float64(l.BubbleMin),
			Timestamp:   now,
			Description: fmt.Sprintf("Bubble sensor %d is below minimum of %d", s.BubbleValue, l.BubbleMin),
		})
	}

	// Oxygen saturation sensor
	if s.SpO2Value < l.SpO2Min || s.SpO2Value > l.SpO2Max {
		threshold := l.SpO2Min
		if s.SpO2Value > l.SpO2Max {
			threshold = l.SpO2Max
		}
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.SpO2OutOfRange,
			Value:       float64(s.SpO2Value),
			Threshold:   float64(threshold),
			Timestamp:   now,
			Description: fmt.Sprintf("SpO2 sensor %d outside %d-%d", s.SpO2Value, l.SpO2Min, l.SpO2Max),
		})
	}

	// Blood temperature
	if s.Temperature < l.TemperatureMin {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.TemperatureOutOfRange,
			Value:       s.Temperature,
			Threshold:   l.TemperatureMin,
			Timestamp:   now,
			Description: fmt.Sprintf("Temperature %.1f°C is below minimum of %.1f°C", s.Temperature, l.TemperatureMin),
		})
	}
	if s.Temperature > l.TemperatureMax {
		anomalies = append(anomalies, &models.Anomaly{
			Type:        models.TemperatureOutOfRange,
			Value:       s.Temperature,
			Threshold:   l.TemperatureMax,
			Timestamp:   now,
			Description: fmt.Sprintf("Temperature %.1f°C exceeds maximum of %.1f°C", s.Temperature, l.TemperatureMax),
		})
	}

	return anomalies
}

// CheckLevel reports a level that has left the normal band. Nil while normal or initializing.
func (vc *VitalsChecker) CheckLevel(r models.LevelReading, cal models.CalibrationConfig) *models.Anomaly {
	switch r.Classification {
	case models.LevelHigh:
		return &models.Anomaly{
			Type:        models.LevelOutOfRange,
			Value:       float64(r.CurrentLevelY),
			Threshold:   float64(cal.HighThreshold()),
			Timestamp:   r.MeasuredAt,
			Description: fmt.Sprintf("Reservoir level %dpx above high mark %dpx", r.CurrentLevelY, cal.HighThreshold()),
		}
	case models.LevelLow:
		return &models.Anomaly{
			Type:        models.LevelOutOfRange,
			Value:       float64(r.CurrentLevelY),
			Threshold:   float64(cal.LowThreshold()),
			Timestamp:   r.MeasuredAt,
			Description: fmt.Sprintf("Reservoir level %dpx below low mark %dpx", r.CurrentLevelY, cal.LowThreshold()),
		}
	}
	return nil
}

// OutOfRange returns the set of vitals currently outside their bands
func (vc *VitalsChecker) OutOfRange(s models.TelemetrySample) map[models.AnomalyType]bool {
	flags := make(map[models.AnomalyType]bool)
	for _, a := range vc.Check(s, time.Time{}) {
		flags[a.Type] = true
	}
	return flags
}
