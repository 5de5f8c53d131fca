package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

const (
	cdcNNDSSURL = "https://data.cdc.gov/resource/x9gk-5huc.json" +
		"?$where=(location1='NEW YORK' OR location1='NEW YORK CITY')" +
		"&$order=year DESC, week DESC&$limit=5000"
	nycCovidURL = "https://data.cityofnewyork.us/resource/rc75-m7u3.json?$limit=5&$order=date_of_interest DESC"
	delphiFluURL = "https://api.delphi.cmu.edu/epidata/fluview/?regions=hhs2&epiweeks=202501"

	nndssSourceURL = "https://data.cdc.gov/NNDSS/NNDSS-Weekly-Data/x9gk-5huc"
	nycCovidSourceURL = "https://data.cityofnewyork.us/Health/COVID-19-Daily-Counts-of-Cases-Hospitalizations-/rc75-m7u3"
	delphiSourceURL = "https://github.com/cmu-delphi/delphi-epidata"
)

// trackedDiseases are the notifiable conditions surfaced on the dashboard.
var trackedDiseases = []string{
	"Chikungunya virus disease",
	"Diphtheria",
	"Marburg virus disease",
	"Measles",
	"Mpox",
	"Influenza-associated pediatric mortality",
	"Novel Influenza A virus infections",
	"Pertussis",
	"Poliomyelitis, paralytic",
	"Rift Valley fever",
	"COVID-19",
}

type nndssRecord struct {
	Label     string `json:"label"`
	M1        string `json:"m1"`
	Location1 string `json:"location1"`
}

type nycCovidRecord struct {
	CaseCount         string `json:"case_count"`
	ProbableCaseCount string `json:"probable_case_count"`
	DateOfInterest    string `json:"date_of_interest"`
}

type fluviewResponse struct {
	Epidata []struct {
		NumILI float64 `json:"num_ili"`
	} `json:"epidata"`
}

// DiseaseService syncs notifiable disease counts from three upstream sources
// and serves the stored snapshot.
type DiseaseService struct {
	repo   repository.DiseaseRepository
	client *http.Client
	logger *logger.Logger
}

// NewDiseaseService creates a new disease surveillance service
func NewDiseaseService(repo repository.DiseaseRepository, client *http.Client, log *logger.Logger) *DiseaseService {
	return &DiseaseService{repo: repo, client: client, logger: log}
}

// Name identifies this adapter in sync logs and error messages.
func (s *DiseaseService) Name() string { return "disease" }

// SyncData fetches CDC NNDSS weekly counts, NYC daily COVID counts and the
// Delphi ILINet flu signal, merges them into the tracked disease list and
// snapshot-replaces the stored stats. A single unreachable upstream degrades
// the snapshot rather than failing the sync.
func (s *DiseaseService) SyncData(ctx context.Context) error {
	nndss := s.fetchNNDSS(ctx)
	covidCount, covidDate := s.fetchNYCCovid(ctx)
	fluCount := s.fetchFluView(ctx)

	stats := buildDiseaseStats(nndss, covidCount, covidDate, fluCount)

	if err := s.repo.ReplaceAll(ctx, stats); err != nil {
		return fmt.Errorf("failed to store disease stats: %w", err)
	}

	s.logger.WithField("records", len(stats)).Info("Disease stats synced")
	return nil
}

// buildDiseaseStats merges the three upstream signals into the tracked
// disease list. The dedicated NYC COVID feed and the Delphi flu signal take
// precedence over NNDSS rows for their diseases.
func buildDiseaseStats(nndss []nndssRecord, covidCount int, covidDate string, fluCount int) []domain.DiseaseStat {
	now := time.Now().UTC().Format(time.RFC3339)
	fluDate := now

	type counts struct {
		current int
		source  string
		url     string
	}
	diseaseMap := make(map[string]*counts, len(trackedDiseases))
	for _, name := range trackedDiseases {
		diseaseMap[name] = &counts{}
	}

	if covidCount > 0 {
		diseaseMap["COVID-19"] = &counts{
			current: covidCount,
			source:  "NYC Open Data",
			url:     nycCovidSourceURL,
		}
	}
	if fluCount > 0 {
		diseaseMap["Novel Influenza A virus infections"].current = fluCount
	}

	for _, record := range nndss {
		if !strings.Contains(strings.ToUpper(record.Location1), "NEW YORK") {
			continue
		}
		name := matchTrackedDisease(record.Label)
		if name == "" {
			continue
		}
		// The dedicated NYC feed wins for COVID when it produced data.
		if strings.Contains(name, "COVID") && covidCount > 0 {
			continue
		}
		if record.M1 == "" || record.M1 == "-" {
			continue
		}
		if count, err := strconv.Atoi(record.M1); err == nil {
			diseaseMap[name].current += count
		}
	}

	stats := make([]domain.DiseaseStat, 0, len(trackedDiseases)+1)
	for _, name := range trackedDiseases {
		c := diseaseMap[name]

		unit := "cases (YTD)"
		lastUpdated := now
		switch {
		case strings.Contains(name, "COVID"):
			unit = "cases (daily)"
			if covidDate != "" {
				lastUpdated = covidDate
			}
		case strings.Contains(name, "Influenza"):
			unit = "ILI visits (region)"
			lastUpdated = fluDate
		}

		source := c.source
		sourceURL := c.url
		if source == "" {
			source = "CDC NNDSS"
			sourceURL = nndssSourceURL
		}

		stats = append(stats, domain.DiseaseStat{
			Name:         name,
			CurrentCount: c.current,
			WeekAgo:      domain.StableTrend(0),
			MonthAgo:     domain.StableTrend(0),
			TwoMonthsAgo: domain.StableTrend(0),
			YearAgo:      domain.StableTrend(0),
			Unit:         unit,
			LastUpdated:  lastUpdated,
			DataSource:   source,
			SourceURL:    sourceURL,
			Region:       "nyc",
		})
	}

	if fluCount > 0 {
		stats = append(stats, domain.DiseaseStat{
			Name:         "Influenza (ILI)",
			CurrentCount: fluCount,
			WeekAgo:      domain.StableTrend(0),
			MonthAgo:     domain.StableTrend(0),
			TwoMonthsAgo: domain.StableTrend(0),
			YearAgo:      domain.StableTrend(0),
			Unit:         "outpatient visits",
			LastUpdated:  fluDate,
			DataSource:   "CDC ILINet (Delphi)",
			SourceURL:    delphiSourceURL,
			Region:       "nyc",
		})
	}

	return stats
}

// GetData serves the stored snapshot for one region.
func (s *DiseaseService) GetData(ctx context.Context, region string) ([]domain.DiseaseStat, error) {
	if region == "" {
		region = "nyc"
	}
	return s.repo.ListByRegion(ctx, region)
}

func (s *DiseaseService) fetchNNDSS(ctx context.Context) []nndssRecord {
	var records []nndssRecord
	if err := s.fetchJSON(ctx, cdcNNDSSURL, &records); err != nil {
		s.logger.WithError(err).Warn("Failed to fetch NNDSS data, continuing without it")
		return nil
	}
	return records
}

func (s *DiseaseService) fetchNYCCovid(ctx context.Context) (int, string) {
	var records []nycCovidRecord
	if err := s.fetchJSON(ctx, nycCovidURL, &records); err != nil {
		s.logger.WithError(err).Warn("Failed to fetch NYC COVID counts, continuing without them")
		return 0, ""
	}
	if len(records) == 0 {
		return 0, ""
	}

	latest := records[0]
	count := parseIntOrZero(latest.CaseCount) + parseIntOrZero(latest.ProbableCaseCount)
	return count, latest.DateOfInterest
}

func (s *DiseaseService) fetchFluView(ctx context.Context) int {
	var resp fluviewResponse
	if err := s.fetchJSON(ctx, delphiFluURL, &resp); err != nil {
		s.logger.WithError(err).Warn("Failed to fetch ILINet data, continuing without it")
		return 0
	}
	if len(resp.Epidata) == 0 {
		return 0
	}
	return int(resp.Epidata[0].NumILI)
}

func (s *DiseaseService) fetchJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// matchTrackedDisease maps an upstream label onto the tracked list, accepting
// truncated labels in either direction.
func matchTrackedDisease(label string) string {
	if label == "" {
		return ""
	}
	for _, name := range trackedDiseases {
		if strings.Contains(label, name) || strings.Contains(name, label) {
			return name
		}
	}
	return ""
}

func parseIntOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
