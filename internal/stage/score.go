package stage

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aurea-hq/underwriting/internal/feeds"
)

// Risk factor weights used by the deterministic decision and by the risk
// breakdown in the final result.
const (
	WeightFlood    = 0.40
	WeightPlanning = 0.20
	WeightAge      = 0.25
	WeightLocality = 0.15
)

// Neutral/holding scores substituted when a stage degrades.
const (
	NeutralPlanningScore = 10.0
	NeutralFloodScore    = 20.0
	NeutralAgeScore      = 30.0
	NeutralLocalityScore = 25.0
)

// Decision categories.
const (
	DecisionAccept  = "accept"
	DecisionRefer   = "refer"
	DecisionDecline = "decline"
)

// OverallScore is the deterministic weighted average of the four sub-scores,
// rounded to one decimal.
func OverallScore(flood, planning, age, locality float64) float64 {
	return round1(flood*WeightFlood + planning*WeightPlanning + age*WeightAge + locality*WeightLocality)
}

// DecisionFor maps an overall score onto a decision category. The boundaries
// are inclusive on the riskier side: exactly 60.0 refers, exactly 80.0
// declines.
func DecisionFor(score float64) string {
	switch {
	case score < 60:
		return DecisionAccept
	case score < 80:
		return DecisionRefer
	default:
		return DecisionDecline
	}
}

// PremiumMultiplier maps an overall score onto the premium multiplier,
// clamped to [0.8, 3.0] and rounded to two decimals.
func PremiumMultiplier(score float64) float64 {
	m := round2(1.0 + (score/100.0)*2.0)
	return math.Min(math.Max(m, 0.8), 3.0)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// ---------------------------------------------------------------------------
// Flood zone scoring
// ---------------------------------------------------------------------------

// ZoneUnknown is the holding classification when the zone source is
// unavailable.
const ZoneUnknown = "unknown"

var zoneScores = map[string]float64{
	"1":         5,
	"2":         45,
	"3":         85,
	ZoneUnknown: 20,
}

var zoneRiskLevels = map[string]string{
	"1": "Very Low",
	"2": "Low to Medium",
	"3": "High",
}

var zoneProbabilities = map[string]string{
	"1": "less than 0.1% annual chance",
	"2": "between 0.1% and 1% annual chance",
	"3": "greater than 1% annual chance",
}

// warningUplift returns the live-warning score uplift for the worst active
// severity: +30 severe warning, +20 warning, +10 alert.
func warningUplift(warnings []feeds.FloodWarning) float64 {
	if len(warnings) == 0 {
		return 0
	}
	worst := 4
	for _, w := range warnings {
		if w.Severity < worst {
			worst = w.Severity
		}
	}
	switch worst {
	case 1:
		return 30
	case 2:
		return 20
	case 3:
		return 10
	}
	return 0
}

// ---------------------------------------------------------------------------
// Construction age scoring
// ---------------------------------------------------------------------------

// AgeBandUnknown is the holding value when no certificate is found.
const AgeBandUnknown = "unknown"

var ageBandScores = map[string]float64{
	"England and Wales: before 1900":  80,
	"England and Wales: 1900-1929":    65,
	"England and Wales: 1930-1949":    55,
	"England and Wales: 1950-1966":    45,
	"England and Wales: 1967-1975":    40,
	"England and Wales: 1976-1982":    35,
	"England and Wales: 1983-1990":    30,
	"England and Wales: 1991-1995":    25,
	"England and Wales: 1996-2002":    20,
	"England and Wales: 2003-2006":    15,
	"England and Wales: 2007-2011":    12,
	"England and Wales: 2012 onwards": 10,
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// scoreAgeBand maps a construction age band to a 0-100 risk score: exact
// match, then substring match, then first-year extraction, then the
// mid-range default.
func scoreAgeBand(band string) float64 {
	if score, ok := ageBandScores[band]; ok {
		return score
	}
	if band != "" {
		lower := strings.ToLower(band)
		for key, score := range ageBandScores {
			if strings.Contains(strings.ToLower(key), lower) {
				return score
			}
		}
	}
	if m := yearPattern.FindString(band); m != "" {
		year, _ := strconv.Atoi(m)
		switch {
		case year < 1900:
			return 80
		case year < 1930:
			return 65
		case year < 1950:
			return 55
		case year < 1975:
			return 40
		case year < 2000:
			return 25
		default:
			return 12
		}
	}
	return NeutralAgeScore
}

// ---------------------------------------------------------------------------
// Crime weighting
// ---------------------------------------------------------------------------

// Category weights reflect insurance relevance: burglary and arson are direct
// property risks, the rest are area indicators.
var crimeWeights = map[string]float64{
	"burglary":              3.0,
	"criminal-damage-arson": 2.5,
	"robbery":               1.5,
	"vehicle-crime":         1.0,
	"theft-from-the-person": 0.8,
}

const defaultCrimeWeight = 0.3

// crimeDivisor scales twelve months of incidents onto 0-100.
const crimeDivisor = 96.0

// scoreCrimes returns the weighted 0-100 score and per-category counts.
func scoreCrimes(crimes []feeds.Crime) (float64, map[string]int) {
	counts := map[string]int{}
	weighted := 0.0
	for _, c := range crimes {
		counts[c.Category]++
		w, ok := crimeWeights[c.Category]
		if !ok {
			w = defaultCrimeWeight
		}
		weighted += w
	}
	return math.Min(round1(weighted/crimeDivisor), 100), counts
}

// crimeLabel buckets a locality score into the customer-facing label.
func crimeLabel(score float64) string {
	switch {
	case score < 20:
		return "Very Low Crime"
	case score < 40:
		return "Low Crime"
	case score < 60:
		return "Moderate Crime"
	case score < 80:
		return "High Crime"
	default:
		return "Very High Crime"
	}
}

// topCategories formats the busiest crime categories for reasoning text.
func topCategories(counts map[string]int, n int) string {
	type kv struct {
		cat   string
		count int
	}
	pairs := make([]kv, 0, len(counts))
	for cat, count := range counts {
		pairs = append(pairs, kv{cat, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].cat < pairs[j].cat
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s (%d)", strings.ReplaceAll(p.cat, "-", " "), p.count)
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Planning activity scoring
// ---------------------------------------------------------------------------

var activityLevelScores = map[string]float64{
	"low":       10,
	"moderate":  35,
	"high":      65,
	"very high": 85,
}

// scorePlanning combines council-level statistics (primary) with the local
// search radius (supplement) into a 0-100 score, label and reasoning.
func scorePlanning(stats feeds.CouncilStats, search feeds.PlanningSearch) (float64, string, string) {
	activity := strings.ToLower(stats.ActivityLevel)
	baseScore := activityLevelScores[activity]

	statsBonus := 0.0
	if stats.NewHomesApproved > 500 {
		statsBonus += 10
	} else if stats.NewHomesApproved > 200 {
		statsBonus += 5
	}
	if stats.RefusalRate > 20 {
		statsBonus += 5
	}
	totalApps := 0
	for _, n := range stats.ApplicationCounts {
		totalApps += n
	}

	localCount := len(search.Applications)
	appeals, largeDevs := 0, 0
	for _, app := range search.Applications {
		if app.AppealStatus != "" || app.AppealDecision != "" {
			appeals++
		}
		if app.NumNewHouses >= 10 || app.ProposedFloorArea >= 1000 {
			largeDevs++
		}
	}
	searchScore := math.Min(float64(localCount*3+appeals*8+largeDevs*10), 40)

	var score float64
	var label string
	if baseScore > 0 {
		score = math.Min(baseScore+statsBonus+searchScore*0.3, 100)
		label = titleCase(activity)
		switch label {
		case "Low", "Moderate", "High", "Very High":
		default:
			label = "Low"
		}
	} else {
		score = math.Min(float64(localCount*3+appeals*8+largeDevs*10), 100)
		switch {
		case score < 20:
			label = "Low"
		case score < 50:
			label = "Moderate"
		case score < 75:
			label = "High"
		default:
			label = "Very High"
		}
	}

	activityText := activity
	if activityText == "" {
		activityText = "unknown"
	}
	reasoning := fmt.Sprintf(
		"Council activity: %s. %d council-level applications; %d new homes approved. "+
			"Approval rate %.1f%%, refusal rate %.1f%%. "+
			"Locally: %d applications within 500 m, %d appeals, %d large developments.",
		activityText, totalApps, stats.NewHomesApproved, stats.ApprovalRate, stats.RefusalRate,
		localCount, appeals, largeDevs)

	return round1(score), label, reasoning
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
