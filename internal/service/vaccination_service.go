package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

const (
	nysVaxURL         = "https://health.data.ny.gov/resource/xrhr-cy84.json"
	childhoodCSVURL   = "https://raw.githubusercontent.com/nychealth/immunization-data/main/demo/Main_Routine_Vaccine_Demo.csv"
	childhoodDataYear = "2025"

	// Statewide population outside the five boroughs, the denominator for
	// REST OF STATE seasonal dose rates.
	nysPopExcludingNYC = 11_600_000
)

// vaccineNameMap expands upstream vaccine group codes into display names.
var vaccineNameMap = map[string]string{
	"DTaP":          "DTaP (Diphtheria, Tetanus, Pertussis)",
	"Polio":         "IPV (Inactivated Polio Vaccine)",
	"MMR":           "MMR (Measles, Mumps, Rubella)",
	"Varicella":     "Varicella (Chickenpox)",
	"HepB":          "Hepatitis B",
	"Hib":           "Hib (Haemophilus influenzae type b)",
	"PCV":           "PCV (Pneumococcal Conjugate)",
	"4313314":       "Combined 7-Vaccine Series (4:3:1:3:3:1:4)",
	"4:3:1:3:3:1:4": "Combined 7-Vaccine Series (4:3:1:3:3:1:4)",
}

type nysVaxRecord struct {
	WeekEnding         string `json:"week_ending"`
	RespiratorySeason  string `json:"respiratory_season"`
	CovidDoseCount     string `json:"covid_19_dose_count"`
	InfluenzaDoseCount string `json:"influenza_dose_count"`
}

type childhoodVaccineRow struct {
	VaccineGroup   string `csv:"VACCINE_GROUP"`
	YearCoverage   string `csv:"YEAR_COVERAGE"`
	Quarter        string `csv:"QUARTER,omitempty"`
	CountPeopleVac string `csv:"COUNT_PEOPLE_VAC"`
	PopDenominator string `csv:"POP_DENOMINATOR"`
	PercVac        string `csv:"PERC_VAC"`
}

// CSVFetcher is the slice of the CSV download cache the vaccination adapter
// needs.
type CSVFetcher interface {
	GetCachedCSV(ctx context.Context, url string, forceDownload bool) (*domain.CSVCacheResult, error)
}

// VaccinationService syncs seasonal dose counts from the NYS open-data API
// and childhood coverage rates from the NYC immunization registry CSV.
type VaccinationService struct {
	repo     repository.VaccinationRepository
	csvCache CSVFetcher
	client   *http.Client
	logger   *logger.Logger
}

// NewVaccinationService creates a new vaccination coverage service
func NewVaccinationService(repo repository.VaccinationRepository, csvCache CSVFetcher, client *http.Client, log *logger.Logger) *VaccinationService {
	return &VaccinationService{repo: repo, csvCache: csvCache, client: client, logger: log}
}

// Name identifies this adapter in sync logs and error messages.
func (s *VaccinationService) Name() string { return "vaccination" }

// SyncData refreshes both regional datasets. Each region is replaced
// independently, so a failing source leaves the other region's data intact.
func (s *VaccinationService) SyncData(ctx context.Context) error {
	if err := s.syncSeasonalDoses(ctx); err != nil {
		return err
	}
	return s.syncChildhoodVaccines(ctx)
}

// GetData serves the stored snapshot grouped by region.
func (s *VaccinationService) GetData(ctx context.Context) (*domain.VaccinationData, error) {
	return s.repo.GetData(ctx)
}

// syncSeasonalDoses sums weekly REST OF STATE dose counts into season totals
// for COVID and influenza.
func (s *VaccinationService) syncSeasonalDoses(ctx context.Context) error {
	url := nysVaxURL + "?geography_level=REST%20OF%20STATE&$limit=1000"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch seasonal dose data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to fetch seasonal dose data: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read seasonal dose response: %w", err)
	}

	var records []nysVaxRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return fmt.Errorf("failed to decode seasonal dose response: %w", err)
	}

	var covidTotal, fluTotal int
	latestDate := ""
	season := "2024-2025"

	if len(records) > 0 {
		for _, record := range records {
			covidTotal += parseIntOrZero(record.CovidDoseCount)
			fluTotal += parseIntOrZero(record.InfluenzaDoseCount)
		}

		sorted := make([]nysVaxRecord, len(records))
		copy(sorted, records)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].WeekEnding > sorted[j].WeekEnding
		})
		latestDate, _, _ = strings.Cut(sorted[0].WeekEnding, "T")
		if sorted[0].RespiratorySeason != "" {
			season = sorted[0].RespiratorySeason
		}
	}

	asOf := fmt.Sprintf("%s Season (as of %s)", season, latestDate)
	sourceLocation := fmt.Sprintf("NYS Open Data API: geography_level='REST OF STATE', respiratory_season='%s'", season)

	stateRecords := []domain.VaccinationRecord{
		{
			Name:              "COVID-19 (Seasonal Doses)",
			CurrentYear:       0,
			FiveYearsAgo:      -1,
			TenYearsAgo:       -1,
			CollectionMethod:  "NYS Immunization Information System (NYSIIS) - Weekly Aggregate Reports",
			SourceURL:         nysVaxURL,
			LastAvailableRate: float64(covidTotal),
			LastAvailableDate: asOf,
			CalculationDetails: &domain.CalculationDetails{
				Numerator:      float64(covidTotal),
				Denominator:    nysPopExcludingNYC,
				Logic:          "Sum of weekly 'covid_19_dose_count' for REST OF STATE geography",
				SourceLocation: sourceLocation,
			},
		},
		{
			Name:              "Influenza (Seasonal Doses)",
			CurrentYear:       0,
			FiveYearsAgo:      -1,
			TenYearsAgo:       -1,
			CollectionMethod:  "NYS Immunization Information System (NYSIIS) - Weekly Aggregate Reports",
			SourceURL:         nysVaxURL,
			LastAvailableRate: float64(fluTotal),
			LastAvailableDate: asOf,
			CalculationDetails: &domain.CalculationDetails{
				Numerator:      float64(fluTotal),
				Denominator:    nysPopExcludingNYC,
				Logic:          "Sum of weekly 'influenza_dose_count' for REST OF STATE geography",
				SourceLocation: sourceLocation,
			},
		},
	}

	if err := s.repo.ReplaceRegion(ctx, "nys", stateRecords); err != nil {
		return fmt.Errorf("failed to store seasonal dose data: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"covid_doses": covidTotal,
		"flu_doses":   fluTotal,
		"season":      season,
	}).Info("Seasonal dose data synced")
	return nil
}

// syncChildhoodVaccines aggregates the registry CSV into a per-vaccine
// population-weighted coverage rate for the latest year's Q2.
func (s *VaccinationService) syncChildhoodVaccines(ctx context.Context) error {
	result, err := s.csvCache.GetCachedCSV(ctx, childhoodCSVURL, false)
	if err != nil {
		return fmt.Errorf("failed to fetch childhood vaccine csv: %w", err)
	}

	var rows []childhoodVaccineRow
	if err := csvutil.Unmarshal([]byte(result.Data), &rows); err != nil {
		return fmt.Errorf("failed to parse childhood vaccine csv: %w", err)
	}

	records := aggregateChildhoodRows(rows)
	if err := s.repo.ReplaceRegion(ctx, "nyc", records); err != nil {
		return fmt.Errorf("failed to store childhood vaccine data: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"vaccines":   len(records),
		"from_cache": result.FromCache,
	}).Info("Childhood vaccine data synced")
	return nil
}

type vaccineAggregate struct {
	weightedPercSum float64
	totalPop        float64
	totalVaccinated float64
}

// aggregateChildhoodRows folds per-demographic rows into one weighted rate
// per vaccine group, keeping only the latest year's Q2 rows.
func aggregateChildhoodRows(rows []childhoodVaccineRow) []domain.VaccinationRecord {
	groups := make(map[string]*vaccineAggregate)
	var order []string

	for _, row := range rows {
		if row.YearCoverage != childhoodDataYear {
			continue
		}
		if row.Quarter != "" && row.Quarter != "Q2" {
			continue
		}

		pop := parseFloatWithCommas(row.PopDenominator)
		perc := parseFloatWithCommas(row.PercVac)
		vaccinated := parseFloatWithCommas(row.CountPeopleVac)

		group, ok := groups[row.VaccineGroup]
		if !ok {
			group = &vaccineAggregate{}
			groups[row.VaccineGroup] = group
			order = append(order, row.VaccineGroup)
		}

		if pop > 0 {
			group.weightedPercSum += perc * pop
			group.totalPop += pop
		}
		group.totalVaccinated += vaccinated
	}

	records := make([]domain.VaccinationRecord, 0, len(order))
	for _, name := range order {
		group := groups[name]

		rate := 0.0
		if group.totalPop > 0 {
			rate = group.weightedPercSum / group.totalPop
		}
		rate = math.Round(rate*10) / 10

		displayName := name
		if mapped, ok := vaccineNameMap[name]; ok {
			displayName = mapped
		}

		records = append(records, domain.VaccinationRecord{
			Name:              displayName,
			CurrentYear:       rate,
			FiveYearsAgo:      -1,
			TenYearsAgo:       -1,
			LastAvailableRate: rate,
			LastAvailableDate: childhoodDataYear + " Q2",
			CollectionMethod:  "NYC Citywide Immunization Registry (CIR)",
			SourceURL:         childhoodCSVURL,
			CalculationDetails: &domain.CalculationDetails{
				Numerator:      group.totalVaccinated,
				Denominator:    group.totalPop,
				Logic:          "Weighted average of validated rates from source data across demographic groups",
				SourceLocation: fmt.Sprintf("NYC Health GitHub CSV. Vaccine: %s, Period: %s Q2", name, childhoodDataYear),
			},
		})
	}

	return records
}

// parseFloatWithCommas parses numbers that may carry thousands separators.
func parseFloatWithCommas(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}
