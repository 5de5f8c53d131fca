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

const nysWastewaterURL = "https://health.data.ny.gov/resource/hdxs-icuh.json?$order=samplecollectdate DESC&$limit=1000"

type nysWastewaterRecord struct {
	SampleCollectDate string `json:"samplecollectdate"`
	WWTPName          string `json:"wwtpname"`
	PCRTargetAvgConc  string `json:"pcrtargetavgconc"`
	PCRTarget         string `json:"pcrtarget"`
}

// WastewaterService syncs treatment-plant surveillance samples from the NYS
// open-data API and serves the stored snapshot.
type WastewaterService struct {
	repo   repository.WastewaterRepository
	client *http.Client
	logger *logger.Logger
}

// NewWastewaterService creates a new wastewater surveillance service
func NewWastewaterService(repo repository.WastewaterRepository, client *http.Client, log *logger.Logger) *WastewaterService {
	return &WastewaterService{repo: repo, client: client, logger: log}
}

// Name identifies this adapter in sync logs and error messages.
func (s *WastewaterService) Name() string { return "wastewater" }

// SyncData fetches the latest samples, normalizes them and snapshot-replaces
// the stored data. Unlike the multi-source adapters there is a single
// upstream here, so a fetch failure fails the sync.
func (s *WastewaterService) SyncData(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nysWastewaterURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch wastewater data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to fetch wastewater data: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read wastewater response: %w", err)
	}

	var records []nysWastewaterRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return fmt.Errorf("failed to decode wastewater response: %w", err)
	}

	data := normalizeWastewater(records)
	if err := s.repo.ReplaceAll(ctx, data); err != nil {
		return fmt.Errorf("failed to store wastewater data: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"samples":     len(data.Samples),
		"alert_level": data.AlertLevel,
	}).Info("Wastewater data synced")
	return nil
}

// GetData serves the stored snapshot.
func (s *WastewaterService) GetData(ctx context.Context) (*domain.WastewaterData, error) {
	return s.repo.Get(ctx)
}

// normalizeWastewater converts raw records into the snapshot shape. The alert
// level escalates to high when the average PCR concentration crosses 1000.
func normalizeWastewater(records []nysWastewaterRecord) *domain.WastewaterData {
	samples := make([]domain.WastewaterSample, 0, len(records))
	var total float64

	for _, record := range records {
		concentration, err := strconv.ParseFloat(record.PCRTargetAvgConc, 64)
		if err != nil {
			concentration = 0
		}

		date, _, _ := strings.Cut(record.SampleCollectDate, "T")
		pathogen := record.PCRTarget
		if pathogen == "" {
			pathogen = "SARS-CoV-2"
		}

		samples = append(samples, domain.WastewaterSample{
			Date:          date,
			Location:      record.WWTPName,
			Concentration: concentration,
			Trend:         "stable",
			Pathogen:      pathogen,
		})
		total += concentration
	}

	avg := 0.0
	if len(samples) > 0 {
		avg = total / float64(len(samples))
	}

	alertLevel := domain.AlertLevelLow
	if avg > 1000 {
		alertLevel = domain.AlertLevelHigh
	}

	return &domain.WastewaterData{
		Samples:              samples,
		AverageConcentration: avg,
		Trend:                "stable",
		AlertLevel:           alertLevel,
		LastUpdated:          time.Now().UTC().Format(time.RFC3339),
		Pathogens:            []string{"SARS-CoV-2"},
	}
}
