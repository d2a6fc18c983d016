package services

import (
	"errors"
	"testing"

	"heartlung/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want LineKind
	}{
		{"[STATUS] HR=72 P=12", LineStatus},
		{"ALARM:Bubble detected", LineAlarm},
		{"!! ALARM: pressure", LineAlarm},
		{"[COM] suction ON", LineCom},
		{"[STATUS] ALARM: inside status", LineStatus},
		{"boot v1.2", LineIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLine(tt.line))
		})
	}
}

func TestParseStatusLine_AllFields(t *testing.T) {
	u, errs := ParseStatusLine("[STATUS] HR=72.5 P=12.25 Bval=512 Sval=98 T=36.8 Alarm=NO Suction=ON", false)
	require.Empty(t, errs)

	var s models.TelemetrySample
	u.Apply(&s)

	assert.Equal(t, 72.5, s.HeartRate)
	assert.Equal(t, 12.25, s.Pressure)
	assert.Equal(t, 512, s.BubbleValue)
	assert.Equal(t, 98, s.SpO2Value)
	assert.Equal(t, 36.8, s.Temperature)
	assert.False(t, s.AlarmActive)
	assert.True(t, s.SuctionOn)
}

func TestParseStatusLine_IsolatesBadToken(t *testing.T) {
	u, errs := ParseStatusLine("[STATUS] HR=abc P=12 Bval=1.5 T=37.0 Alarm=MAYBE", false)

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.True(t, errors.Is(err, models.ErrParse))
	}
	assert.Nil(t, u.HeartRate)
	assert.Nil(t, u.BubbleValue)
	assert.Nil(t, u.AlarmActive)
	require.NotNil(t, u.Pressure)
	require.NotNil(t, u.Temperature)
	assert.Equal(t, 37.0, *u.Temperature)
}

func TestParseStatusLine_LegacySkipsAfterFailure(t *testing.T) {
	u, errs := ParseStatusLine("[STATUS] HR=80 P=oops T=37.0", true)

	require.Len(t, errs, 1)
	require.NotNil(t, u.HeartRate)
	assert.Equal(t, 80.0, *u.HeartRate)
	assert.Nil(t, u.Pressure)
	assert.Nil(t, u.Temperature)
}

func TestParseStatusLine_MalformedAndUnknownTokens(t *testing.T) {
	u, errs := ParseStatusLine("[STATUS] HR=70 garbage FW=2.1", false)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "garbage")
	require.NotNil(t, u.HeartRate)
}

func TestParseStatusLine_FlagsAreCaseInsensitive(t *testing.T) {
	u, errs := ParseStatusLine("[STATUS] Alarm=yes Suction=off", false)
	require.Empty(t, errs)
	assert.True(t, *u.AlarmActive)
	assert.False(t, *u.SuctionOn)
}

func TestAlarmText(t *testing.T) {
	assert.Equal(t, "Air bubble in line", alarmText("ALARM: Air bubble in line"))
}
