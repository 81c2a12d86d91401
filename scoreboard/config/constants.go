package config

import "time"

// Application-wide constants organized by domain

// Point Values
const (
	// Base values by pull request label
	PointsHotfix      = 80
	PointsBugfix      = 50
	PointsFeature     = 100
	PointsEnhancement = 75
	PointsRefactor    = 60
	PointsDocs        = 30
	PointsDefault     = 40

	// Flat award per submitted review
	PointsReview = 15
)

// Streak Multipliers
const (
	StreakTierYear    = 365
	StreakTierQuarter = 90
	StreakTierMonth   = 30
	StreakTierWeek    = 7

	MultiplierYear    = 2.0
	MultiplierQuarter = 1.5
	MultiplierMonth   = 1.25
	MultiplierWeek    = 1.1
)

// Currency Thresholds
const (
	// Bills
	BillFirstThreshold = 10  // authored or reviewed count for the first bill
	BillStepThreshold  = 100 // total contributions per incremental bill

	// Vonettes
	VonetteThreshold = 500 // authored or reviewed count for a vonette
	VonetteUnits     = 5
)

// Milestone Counts
var (
	AuthoredMilestones = []int64{1, 10, 50, 100, 500, 1000}
	ReviewMilestones   = []int64{1, 10, 50, 100, 500, 1000}
	StreakMilestones   = []int64{7, 30, 90, 365}
)

// Database and Performance Constants
const (
	// Timeouts
	DefaultQueryTimeout = 30 * time.Second
	AdmissionTimeout    = 10 * time.Second
	RolloverTimeout     = 5 * time.Minute
	AuditTimeout        = 10 * time.Minute
	StatsQueryTimeout   = 10 * time.Second

	// Batch processing
	DefaultBatchSize = 50
	MaxRetries       = 3

	// Cache settings
	AnnounceCacheSize = 1024
)

// Quarter System Constants
const (
	// First month of Q1 per scheme
	QuarterSchemeCalendar = 1
	QuarterSchemeAcademic = 9
	QuarterSchemeFiscal   = 10

	MonthsPerQuarter = 3
	QuartersPerYear  = 4
)

// Logging and Monitoring Constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LabelPoints maps a normalized pull request label to its base point value.
//
// To add a new scored label:
// 1. Add the point constant above in the Point Values block
// 2. Add the mapping here: "label": PointsConstant,
// 3. Keep LabelPriority in sync if the label should outrank others
var LabelPoints = map[string]int64{
	"hotfix":      PointsHotfix,
	"bug":         PointsBugfix,
	"fix":         PointsBugfix,
	"feature":     PointsFeature,
	"enhancement": PointsEnhancement,
	"improve":     PointsEnhancement,
	"refactor":    PointsRefactor,
	"doc":         PointsDocs,
}

// LabelPriority orders labels for scoring when a pull request carries more
// than one. The first label found on the request wins.
var LabelPriority = []string{
	"hotfix",
	"bug",
	"fix",
	"feature",
	"enhancement",
	"improve",
	"refactor",
	"doc",
}

// IsScoredLabel checks if a label has an explicit point value
func IsScoredLabel(label string) bool {
	_, exists := LabelPoints[label]
	return exists
}

// StreakMultiplier returns the points multiplier for a current streak length
func StreakMultiplier(streak int64) float64 {
	switch {
	case streak >= StreakTierYear:
		return MultiplierYear
	case streak >= StreakTierQuarter:
		return MultiplierQuarter
	case streak >= StreakTierMonth:
		return MultiplierMonth
	case streak >= StreakTierWeek:
		return MultiplierWeek
	default:
		return 1.0
	}
}
