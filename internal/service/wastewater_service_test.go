package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthboard/internal/domain"
)

func TestNormalizeWastewater(t *testing.T) {
	records := []nysWastewaterRecord{
		{SampleCollectDate: "2025-08-20T00:00:00.000", WWTPName: "Newtown Creek", PCRTargetAvgConc: "150.5", PCRTarget: "SARS-CoV-2"},
		{SampleCollectDate: "2025-08-19T00:00:00.000", WWTPName: "Wards Island", PCRTargetAvgConc: "49.5", PCRTarget: ""},
		{SampleCollectDate: "2025-08-18T00:00:00.000", WWTPName: "Hunts Point", PCRTargetAvgConc: "not a number"},
	}

	data := normalizeWastewater(records)

	require.Len(t, data.Samples, 3)
	assert.Equal(t, "2025-08-20", data.Samples[0].Date)
	assert.Equal(t, "Newtown Creek", data.Samples[0].Location)
	assert.Equal(t, 150.5, data.Samples[0].Concentration)

	// A missing pathogen defaults, an unparseable concentration becomes zero.
	assert.Equal(t, "SARS-CoV-2", data.Samples[1].Pathogen)
	assert.Zero(t, data.Samples[2].Concentration)

	assert.InDelta(t, 66.67, data.AverageConcentration, 0.01)
	assert.Equal(t, domain.AlertLevelLow, data.AlertLevel)
	assert.Equal(t, []string{"SARS-CoV-2"}, data.Pathogens)
}

func TestNormalizeWastewater_HighAlert(t *testing.T) {
	records := []nysWastewaterRecord{
		{SampleCollectDate: "2025-08-20", WWTPName: "A", PCRTargetAvgConc: "2500"},
		{SampleCollectDate: "2025-08-19", WWTPName: "B", PCRTargetAvgConc: "1800"},
	}

	data := normalizeWastewater(records)
	assert.Equal(t, domain.AlertLevelHigh, data.AlertLevel)
}

func TestNormalizeWastewater_Empty(t *testing.T) {
	data := normalizeWastewater(nil)

	assert.Empty(t, data.Samples)
	assert.Zero(t, data.AverageConcentration)
	assert.Equal(t, domain.AlertLevelLow, data.AlertLevel)
	assert.NotEmpty(t, data.LastUpdated)
}
