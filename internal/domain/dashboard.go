package domain

import "time"

// TrendPoint is a historical comparison slot. Trend computation is out of
// scope for the live data path, so counts are zero and the trend is stable.
type TrendPoint struct {
	Count         int     `json:"count"`
	Trend         string  `json:"trend"`
	PercentChange float64 `json:"percentChange"`
}

// StableTrend returns the placeholder trend slot used by all datasets.
func StableTrend(count int) TrendPoint {
	return TrendPoint{Count: count, Trend: "stable", PercentChange: 0}
}

// DiseaseStat is a normalized disease-surveillance record.
type DiseaseStat struct {
	Name         string     `json:"name"`
	CurrentCount int        `json:"currentCount"`
	WeekAgo      TrendPoint `json:"weekAgo"`
	MonthAgo     TrendPoint `json:"monthAgo"`
	TwoMonthsAgo TrendPoint `json:"twoMonthsAgo"`
	YearAgo      TrendPoint `json:"yearAgo"`
	Unit         string     `json:"unit"`
	LastUpdated  string     `json:"lastUpdated"`
	DataSource   string     `json:"dataSource,omitempty"`
	SourceURL    string     `json:"sourceUrl,omitempty"`
	Region       string     `json:"region,omitempty"`
}

// WastewaterSample is a single normalized treatment-plant sample.
type WastewaterSample struct {
	Date          string  `json:"date"`
	Location      string  `json:"location"`
	Concentration float64 `json:"concentration"`
	Trend         string  `json:"trend"`
	Pathogen      string  `json:"pathogen,omitempty"`
}

// Wastewater alert levels derived from the average concentration.
const (
	AlertLevelLow      = "low"
	AlertLevelModerate = "moderate"
	AlertLevelHigh     = "high"
	AlertLevelCritical = "critical"
)

// WastewaterData is the current wastewater snapshot.
type WastewaterData struct {
	Samples              []WastewaterSample `json:"samples"`
	AverageConcentration float64            `json:"averageConcentration"`
	Trend                string             `json:"trend"`
	AlertLevel           string             `json:"alertLevel"`
	LastUpdated          string             `json:"lastUpdated"`
	Pathogens            []string           `json:"pathogens,omitempty"`
}

// CalculationDetails documents how a vaccination rate was derived.
type CalculationDetails struct {
	Numerator      float64 `json:"numerator"`
	Denominator    float64 `json:"denominator"`
	Logic          string  `json:"logic"`
	SourceLocation string  `json:"sourceLocation"`
}

// VaccinationRecord is a normalized vaccination-coverage record.
type VaccinationRecord struct {
	Name               string              `json:"name"`
	CurrentYear        float64             `json:"currentYear"`
	FiveYearsAgo       float64             `json:"fiveYearsAgo"`
	TenYearsAgo        float64             `json:"tenYearsAgo"`
	CollectionMethod   string              `json:"collectionMethod,omitempty"`
	SourceURL          string              `json:"sourceUrl,omitempty"`
	IsReportingStopped bool                `json:"isReportingStopped,omitempty"`
	LastAvailableRate  float64             `json:"lastAvailableRate,omitempty"`
	LastAvailableDate  string              `json:"lastAvailableDate,omitempty"`
	CalculationDetails *CalculationDetails `json:"calculationDetails,omitempty"`
}

// VaccinationData groups vaccination records by region.
type VaccinationData struct {
	NYC []VaccinationRecord `json:"nyc"`
	NYS []VaccinationRecord `json:"nys"`
}

// NewsAlert is a normalized public-health news item.
type NewsAlert struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Date     string `json:"date"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
	URL      string `json:"url,omitempty"`
	Region   string `json:"region,omitempty"`
}

// NewsData groups news alerts by region.
type NewsData struct {
	NYC         []NewsAlert `json:"nyc"`
	NYS         []NewsAlert `json:"nys"`
	USA         []NewsAlert `json:"usa"`
	LastUpdated string      `json:"lastUpdated"`
}

// CSVCacheEntry is the metadata row describing one cached download of a
// remote CSV resource. The referenced file and this row must never diverge:
// a missing file or hash mismatch is treated as a cache miss.
type CSVCacheEntry struct {
	URL                string    `json:"url"`
	Filename           string    `json:"filename"`
	LocalPath          string    `json:"localPath"`
	RemoteLastModified string    `json:"remoteLastModified,omitempty"`
	RemoteETag         string    `json:"remoteEtag,omitempty"`
	LocalFileHash      string    `json:"localFileHash"`
	DownloadCount      int       `json:"downloadCount"`
	LastChecked        time.Time `json:"lastChecked"`
}

// CSVCacheResult is the payload returned by the CSV download cache.
type CSVCacheResult struct {
	Data         string `json:"data"`
	Filename     string `json:"filename"`
	FromCache    bool   `json:"fromCache"`
	LastModified string `json:"lastModified,omitempty"`
}

// CSVCacheStats summarizes the cache for observability.
type CSVCacheStats struct {
	TotalEntries int        `json:"totalEntries"`
	TotalSize    int64      `json:"totalSize"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry  *time.Time `json:"newestEntry,omitempty"`
}

// CacheMetadata is attached to dashboard responses for observability.
type CacheMetadata struct {
	LastFetched string        `json:"lastFetched"`
	CSVCache    CSVCacheStats `json:"csvCache"`
}

// DashboardSnapshot is the aggregated read model served to the client.
type DashboardSnapshot struct {
	VaccinationData VaccinationData          `json:"vaccinationData"`
	DiseaseStats    map[string][]DiseaseStat `json:"diseaseStats"`
	WastewaterData  WastewaterData           `json:"wastewaterData"`
	NewsData        NewsData                 `json:"newsData"`
	CacheMetadata   CacheMetadata            `json:"cacheMetadata"`
}
