package prompt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kdani7777/Soothsayer/internal/adapter/strava"
	"github.com/kdani7777/Soothsayer/internal/prompt"
)

var now = time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)

func TestConversions(t *testing.T) {
	assert.Equal(t, 3.11, prompt.MetersToMiles(5000))
	assert.Equal(t, 50.0, prompt.MetersToMiles(80467.2))
	assert.InDelta(t, 32.8084, prompt.MetersToFeet(10), 1e-9)
}

func TestPace(t *testing.T) {
	tests := []struct {
		name    string
		meters  float64
		seconds float64
		want    string
	}{
		{"ten minute miles", 1609.344 * 3, 1800, "10:00/mile"},
		{"partial minute", 1609.344 * 3, 1830, "10:10/mile"},
		{"fast", 80467.2, 28800, "09:36/mile"},
		{"no distance", 0, 600, "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prompt.Pace(tt.meters, tt.seconds))
		})
	}
}

func TestAnswer(t *testing.T) {
	p := prompt.Answer("any flat 10Ks?", []string{"Burbank 10K", "Pasadena Half"}, now)

	assert.Contains(t, p, "The current date and time is: Tuesday, March 05, 2024 02:07 PM")
	assert.Contains(t, p, "Burbank 10K\n\nPasadena Half")
	assert.Contains(t, p, "Question: any flat 10Ks?")
	assert.Contains(t, p, "elite endurance athlete coach")
}

func TestRecommendation(t *testing.T) {
	stats := strava.Stats{
		RecentRunTotals: strava.Totals{Count: 12, Distance: 80467.2, MovingTime: 28800, ElevationGain: 300},
		YTDRunTotals:    strava.Totals{Count: 150, Distance: 1609344, MovingTime: 540000, ElevationGain: 9000},
	}

	p := prompt.Recommendation(stats, "Los Angeles, CA", now)

	assert.Contains(t, p, "The runner is located in: Los Angeles, CA")
	assert.Contains(t, p, "- Total distance ran: 50 miles")
	assert.Contains(t, p, "- Total runs: 12")
	assert.Contains(t, p, "- Total elevation gain: 984.25 ft")
	assert.Contains(t, p, "- Average pace: 09:36/mile")
	assert.Contains(t, p, "- Total distance ran: 1000 miles")
	assert.Contains(t, p, "- Average pace: 09:00/mile")
	assert.Contains(t, p, "What upcoming local races would you recommend")
}

func TestFormatContexts_Empty(t *testing.T) {
	assert.Equal(t, "", prompt.FormatContexts(nil))
}
