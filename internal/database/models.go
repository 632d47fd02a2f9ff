package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Site represents a monitored PV site
type Site struct {
	SiteUUID           uuid.UUID
	ClientSiteID       int
	ClientSiteName     *string
	Region             *string
	DNO                *string
	GSP                *string
	Latitude           *float64
	Longitude          *float64
	InverterCapacityKW decimal.Decimal
	ModuleCapacityKW   decimal.Decimal
	CreatedUTC         time.Time
}

// ForecastRun is one generation event of a forecast for a site
type ForecastRun struct {
	ForecastUUID    uuid.UUID
	SiteUUID        uuid.UUID
	TimestampUTC    time.Time
	ForecastVersion string
}

// ForecastValue is a single predicted interval belonging to a ForecastRun
type ForecastValue struct {
	ForecastValueUUID uuid.UUID
	StartUTC          time.Time
	EndUTC            time.Time
	HorizonMinutes    int
	ForecastPowerKW   float64
}

// ForecastRow pairs a run with one of its values, as returned by the forecast queries
type ForecastRow struct {
	Forecast ForecastRun
	Value    ForecastValue
}

// GenerationRow represents a measured generation reading
type GenerationRow struct {
	SiteUUID          uuid.UUID
	StartUTC          time.Time
	EndUTC            time.Time
	GenerationPowerKW float64
}

// User is an API user with the sites of their site group
type User struct {
	UserUUID      uuid.UUID
	Email         string
	SiteGroupUUID uuid.UUID
	SiteGroupName string
	SiteUUIDs     []string
}
