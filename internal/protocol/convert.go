package protocol

import (
	"github.com/smukkama/pvsite-server/internal/database"
)

// ForecastRowsToVerbose groups rows by forecast run, in the order runs first
// appear. Values keep their row order.
func ForecastRowsToVerbose(rows []database.ForecastRow) []Forecast {
	forecasts := []Forecast{}
	index := make(map[string]int)

	for _, row := range rows {
		id := row.Forecast.ForecastUUID.String()
		i, ok := index[id]
		if !ok {
			i = len(forecasts)
			index[id] = i
			forecasts = append(forecasts, Forecast{
				ForecastUUID:             id,
				SiteUUID:                 row.Forecast.SiteUUID.String(),
				ForecastCreationDatetime: row.Forecast.TimestampUTC,
				ForecastVersion:          row.Forecast.ForecastVersion,
			})
		}
		forecasts[i].ForecastValues = append(forecasts[i].ForecastValues, SiteForecastValue{
			TargetDatetimeUTC:    row.Value.StartUTC,
			ExpectedGenerationKW: row.Value.ForecastPowerKW,
		})
	}

	return forecasts
}

// ForecastRowsToCompact groups rows by target datetime, in the order datetimes
// first appear. If a site has two values at the same datetime the later row wins.
func ForecastRowsToCompact(rows []database.ForecastRow) []OneDatetimeManyForecasts {
	out := []OneDatetimeManyForecasts{}
	index := make(map[int64]int)

	for _, row := range rows {
		key := row.Value.StartUTC.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, OneDatetimeManyForecasts{
				DatetimeUTC:    row.Value.StartUTC,
				ForecastValues: make(map[string]float64),
			})
		}
		out[i].ForecastValues[row.Forecast.SiteUUID.String()] = row.Value.ForecastPowerKW
	}

	return out
}

// GenerationRowsToVerbose returns one entry per requested site, in request
// order, including sites without readings. Readings of sites that were not
// requested are appended after them.
func GenerationRowsToVerbose(rows []database.GenerationRow, siteUUIDs []string) []MultiplePVActual {
	out := make([]MultiplePVActual, 0, len(siteUUIDs))
	index := make(map[string]int, len(siteUUIDs))

	for _, id := range siteUUIDs {
		if _, ok := index[id]; ok {
			continue
		}
		index[id] = len(out)
		out = append(out, MultiplePVActual{SiteUUID: id, PVActualValues: []PVActualValue{}})
	}

	for _, row := range rows {
		id := row.SiteUUID.String()
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, MultiplePVActual{SiteUUID: id, PVActualValues: []PVActualValue{}})
		}
		out[i].PVActualValues = append(out[i].PVActualValues, PVActualValue{
			DatetimeUTC:        row.StartUTC,
			ActualGenerationKW: row.GenerationPowerKW,
		})
	}

	return out
}

// GenerationRowsToCompact groups readings by timestamp, in first-seen order
func GenerationRowsToCompact(rows []database.GenerationRow) []PVActualValueBySite {
	out := []PVActualValueBySite{}
	index := make(map[int64]int)

	for _, row := range rows {
		key := row.StartUTC.UnixNano()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, PVActualValueBySite{
				DatetimeUTC:            row.StartUTC,
				GenerationKWByLocation: make(map[string]float64),
			})
		}
		out[i].GenerationKWByLocation[row.SiteUUID.String()] = row.GenerationPowerKW
	}

	return out
}

// SiteToMetadata converts a site record to its API shape
func SiteToMetadata(site *database.Site) PVSiteMetadata {
	return PVSiteMetadata{
		SiteUUID:           site.SiteUUID.String(),
		ClientSiteID:       site.ClientSiteID,
		ClientSiteName:     site.ClientSiteName,
		Region:             site.Region,
		DNO:                site.DNO,
		GSP:                site.GSP,
		Latitude:           site.Latitude,
		Longitude:          site.Longitude,
		InverterCapacityKW: site.InverterCapacityKW,
		ModuleCapacityKW:   site.ModuleCapacityKW,
		CreatedUTC:         site.CreatedUTC,
	}
}
