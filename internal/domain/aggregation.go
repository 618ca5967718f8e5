package domain

import (
	"math"
	"sort"
	"strconv"
	"time"
)

const (
	// GlobalDailyAverageKg is the per-person daily footprint (≈16 t/year) used for comparison.
	GlobalDailyAverageKg = 44.0

	weeklyDays      = 7
	recentLimit     = 10
	insightTotalKg  = 50.0
	insightShareMax = 40.0
)

// Chart colours for category shares.
const (
	ColorLow    = "#28a745"
	ColorMedium = "#ffc107"
	ColorHigh   = "#dc3545"
)

// CategoryStat is one row of the per-category breakdown.
type CategoryStat struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Icon         string  `json:"icon,omitempty"`
	TotalCO2     float64 `json:"total_co2"`
	Count        int     `json:"count"`
	Percentage   float64 `json:"percentage"`
	Color        string  `json:"color"`
}

// DayTotal is one point of the trailing seven day series.
type DayTotal struct {
	Date    time.Time `json:"date"`
	Weekday string    `json:"weekday"`
	Label   string    `json:"label"`
	CO2     float64   `json:"co2"`
}

// Comparison relates the user's average to the global daily average.
type Comparison struct {
	GlobalDailyAverage float64 `json:"global_daily_average"`
	UserAverage        float64 `json:"user_average"`
	Direction          string  `json:"direction"`
	Percent            float64 `json:"percent"`
}

// Insight is a short dashboard tip derived from the totals.
type Insight struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Saving      string `json:"saving"`
	Priority    string `json:"priority"`
}

// Dashboard is the aggregated view of a user's footprint. Values are rounded
// for display; stored activities keep full precision.
type Dashboard struct {
	TotalCO2      float64        `json:"total_co2"`
	AverageCO2    float64        `json:"average_co2"`
	ActivityCount int            `json:"activity_count"`
	Categories    []CategoryStat `json:"categories"`
	Weekly        []DayTotal     `json:"weekly"`
	Comparison    Comparison     `json:"comparison"`
	Insights      []Insight      `json:"insights"`
	Recent        []Activity     `json:"-"`
}

// BuildDashboard aggregates activities. categories supplies names, icons and
// ordering; activities in categories missing from it fall back to the name
// stored on the activity. Days are UTC calendar days, matching Activity.Date.
func BuildDashboard(activities []Activity, categories []ActivityCategory, now time.Time) Dashboard {
	now = now.UTC()
	var total float64
	for _, a := range activities {
		total += a.CalculatedCO2
	}
	var average float64
	if len(activities) > 0 {
		average = total / float64(len(activities))
	}

	breakdown := categoryBreakdown(activities, categories, total)

	return Dashboard{
		TotalCO2:      round(total, 2),
		AverageCO2:    round(average, 2),
		ActivityCount: len(activities),
		Categories:    breakdown,
		Weekly:        weeklySeries(activities, now),
		Comparison:    compareToGlobal(average),
		Insights:      insights(total, breakdown),
		Recent:        recentActivities(activities),
	}
}

func categoryBreakdown(activities []Activity, categories []ActivityCategory, total float64) []CategoryStat {
	type acc struct {
		name  string
		icon  string
		sum   float64
		count int
	}
	known := make(map[int64]ActivityCategory, len(categories))
	for _, c := range categories {
		known[c.ID] = c
	}

	groups := make(map[int64]*acc)
	for _, a := range activities {
		g, ok := groups[a.CategoryID]
		if !ok {
			g = &acc{name: a.CategoryName}
			if c, found := known[a.CategoryID]; found {
				g.name = c.Name
				g.icon = c.Icon
			}
			groups[a.CategoryID] = g
		}
		g.sum += a.CalculatedCO2
		g.count++
	}

	stats := make([]CategoryStat, 0, len(groups))
	for id, g := range groups {
		var pct float64
		if total > 0 {
			pct = g.sum / total * 100
		}
		stats = append(stats, CategoryStat{
			CategoryID:   id,
			CategoryName: g.name,
			Icon:         g.icon,
			TotalCO2:     round(g.sum, 2),
			Count:        g.count,
			Percentage:   round(pct, 1),
			Color:        shareColor(pct),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CategoryName != stats[j].CategoryName {
			return stats[i].CategoryName < stats[j].CategoryName
		}
		return stats[i].CategoryID < stats[j].CategoryID
	})
	return stats
}

func shareColor(pct float64) string {
	switch {
	case pct < 30:
		return ColorLow
	case pct < 60:
		return ColorMedium
	default:
		return ColorHigh
	}
}

// weeklySeries returns today and the six preceding days, oldest first.
func weeklySeries(activities []Activity, now time.Time) []DayTotal {
	today := Day(now)
	sums := make(map[time.Time]float64, weeklyDays)
	for _, a := range activities {
		sums[Day(a.Date)] += a.CalculatedCO2
	}

	series := make([]DayTotal, 0, weeklyDays)
	for i := weeklyDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		series = append(series, DayTotal{
			Date:    day,
			Weekday: day.Format("Mon"),
			Label:   day.Format("02.01"),
			CO2:     round(sums[day], 2),
		})
	}
	return series
}

func compareToGlobal(average float64) Comparison {
	direction := "above"
	if average < GlobalDailyAverageKg {
		direction = "below"
	}
	return Comparison{
		GlobalDailyAverage: GlobalDailyAverageKg,
		UserAverage:        round(average, 2),
		Direction:          direction,
		Percent:            round(math.Abs((average-GlobalDailyAverageKg)/GlobalDailyAverageKg*100), 1),
	}
}

func insights(total float64, breakdown []CategoryStat) []Insight {
	out := make([]Insight, 0, 2)
	if total > insightTotalKg {
		out = append(out, Insight{
			Title:       "Cut back on car trips",
			Description: "Try public transport twice a week",
			Saving:      "~5 kg CO₂ per week",
			Priority:    string(DifficultyHigh),
		})
	}
	if len(breakdown) > 0 {
		top := breakdown[0]
		for _, stat := range breakdown[1:] {
			if stat.Percentage > top.Percentage {
				top = stat
			}
		}
		if top.Percentage > insightShareMax {
			out = append(out, Insight{
				Title:       "Focus on " + top.CategoryName,
				Description: "This category makes up " + formatPercent(top.Percentage) + " of your footprint",
				Saving:      "~10-30% of your total footprint",
				Priority:    string(DifficultyMedium),
			})
		}
	}
	return out
}

func recentActivities(activities []Activity) []Activity {
	recent := make([]Activity, len(activities))
	copy(recent, activities)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	return recent
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
