package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidRFIDTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"1234567890", true},
		{"0000000000", true},
		{"", false},
		{"123456789", false},
		{"12345678901", false},
		{"12345abcde", false},
		{" 1234567890", false},
		{"１２３４５６７８９０", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidRFIDTag(tt.tag))
		})
	}
}

func TestTimeSlotValid(t *testing.T) {
	assert.True(t, SlotMorning.Valid())
	assert.True(t, SlotAfternoon.Valid())
	assert.False(t, TimeSlot("15:00-18:00").Valid())
	assert.False(t, TimeSlot("").Valid())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	assert.NoError(t, err)
	assert.Equal(t, time.June, d.Month())

	_, err = ParseDate("06/01/2025")
	assert.Error(t, err)
	_, err = ParseDate("2025-02-30")
	assert.Error(t, err)
}
