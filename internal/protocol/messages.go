package protocol

import (
	"time"

	"github.com/shopspring/decimal"
)

// SiteForecastValue is one predicted interval of a forecast
type SiteForecastValue struct {
	TargetDatetimeUTC    time.Time `json:"target_datetime_utc" yaml:"target_datetime_utc"`
	ExpectedGenerationKW float64   `json:"expected_generation_kw" yaml:"expected_generation_kw"`
}

// Forecast is the detailed shape: one entry per forecast run
type Forecast struct {
	ForecastUUID             string              `json:"forecast_uuid" yaml:"forecast_uuid"`
	SiteUUID                 string              `json:"site_uuid" yaml:"site_uuid"`
	ForecastCreationDatetime time.Time           `json:"forecast_creation_datetime" yaml:"forecast_creation_datetime"`
	ForecastVersion          string              `json:"forecast_version" yaml:"forecast_version"`
	ForecastValues           []SiteForecastValue `json:"forecast_values" yaml:"forecast_values"`
}

// OneDatetimeManyForecasts is the compact shape: one entry per target datetime,
// keyed by site uuid
type OneDatetimeManyForecasts struct {
	DatetimeUTC    time.Time          `json:"datetime_utc" yaml:"datetime_utc"`
	ForecastValues map[string]float64 `json:"forecast_values" yaml:"forecast_values"`
}

// PVActualValue is a single generation reading
type PVActualValue struct {
	DatetimeUTC        time.Time `json:"datetime_utc" yaml:"datetime_utc"`
	ActualGenerationKW float64   `json:"actual_generation_kw" yaml:"actual_generation_kw"`
}

// MultiplePVActual holds the readings of one site
type MultiplePVActual struct {
	SiteUUID       string          `json:"site_uuid" yaml:"site_uuid"`
	PVActualValues []PVActualValue `json:"pv_actual_values" yaml:"pv_actual_values"`
}

// PVActualValueBySite holds the readings of many sites at one datetime
type PVActualValueBySite struct {
	DatetimeUTC            time.Time          `json:"datetime_utc" yaml:"datetime_utc"`
	GenerationKWByLocation map[string]float64 `json:"generation_kw_by_location" yaml:"generation_kw_by_location"`
}

// PVSiteMetadata describes a site
type PVSiteMetadata struct {
	SiteUUID           string          `json:"site_uuid" yaml:"site_uuid"`
	ClientSiteID       int             `json:"client_site_id" yaml:"client_site_id"`
	ClientSiteName     *string         `json:"client_site_name,omitempty" yaml:"client_site_name,omitempty"`
	Region             *string         `json:"region,omitempty" yaml:"region,omitempty"`
	DNO                *string         `json:"dno,omitempty" yaml:"dno,omitempty"`
	GSP                *string         `json:"gsp,omitempty" yaml:"gsp,omitempty"`
	Latitude           *float64        `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude          *float64        `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	InverterCapacityKW decimal.Decimal `json:"inverter_capacity_kw" yaml:"inverter_capacity_kw"`
	ModuleCapacityKW   decimal.Decimal `json:"module_capacity_kw" yaml:"module_capacity_kw"`
	CreatedUTC         time.Time       `json:"created_utc" yaml:"created_utc"`
}
