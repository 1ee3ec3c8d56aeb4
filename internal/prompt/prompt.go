// Package prompt builds the text sent to the retriever and the answer model.
package prompt

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kdani7777/Soothsayer/internal/adapter/strava"
)

const (
	metersPerMile = 1609.344
	feetPerMeter  = 3.28084

	// DateTimeLayout renders like "Monday, January 02, 2006 03:04 PM".
	DateTimeLayout = "Monday, January 02, 2006 03:04 PM"
)

const answerTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
The current date and time is: %s

You are an elite endurance athlete coach who specializes in recommending races to people based
on their fitness and preferences. Recommend races and include corresponding signup/info links.
Format your response so it is easy to read in a chat interface.

%s

Question: %s

Helpful Answer:`

const profileTemplate = `Here is the fitness data of a runner.

The runner is located in: %s
The current date and time is: %s

**Recent Activity stats (Last 4 weeks):**
%s
**Year-To-Date Activity stats:**
%s
What upcoming local races would you recommend this runner participate in?`

// MetersToMiles converts and rounds to two decimals.
func MetersToMiles(meters float64) float64 {
	return round2(meters / metersPerMile)
}

func MetersToFeet(meters float64) float64 {
	return meters * feetPerMeter
}

// Pace returns the average time per mile as "MM:SS/mile", truncating
// seconds. A zero distance has no pace.
func Pace(meters, seconds float64) string {
	miles := MetersToMiles(meters)
	if miles <= 0 {
		return "n/a"
	}
	perMile := int(seconds / miles)
	return fmt.Sprintf("%02d:%02d/mile", perMile/60, perMile%60)
}

// FormatContexts joins retrieved texts with blank lines.
func FormatContexts(contexts []string) string {
	return strings.Join(contexts, "\n\n")
}

// Answer builds the coach prompt around the retrieved contexts.
func Answer(query string, contexts []string, now time.Time) string {
	return fmt.Sprintf(answerTemplate, now.Format(DateTimeLayout), FormatContexts(contexts), query)
}

// Recommendation describes an athlete's training so it can be used as a
// retrieval query.
func Recommendation(stats strava.Stats, location string, now time.Time) string {
	return fmt.Sprintf(profileTemplate,
		location,
		now.Format(DateTimeLayout),
		totals(stats.RecentRunTotals),
		totals(stats.YTDRunTotals),
	)
}

func totals(t strava.Totals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Total distance ran: %s miles\n", formatFloat(MetersToMiles(t.Distance)))
	fmt.Fprintf(&b, "- Total runs: %d\n", t.Count)
	fmt.Fprintf(&b, "- Total elevation gain: %s ft\n", formatFloat(round2(MetersToFeet(t.ElevationGain))))
	fmt.Fprintf(&b, "- Average pace: %s\n", Pace(t.Distance, t.MovingTime))
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatFloat(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
