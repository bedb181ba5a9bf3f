//go:build integration

package sensordata_test

import (
	"context"
	"testing"

	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/sensordata"
	"github.com/cityair/conductor/internal/testutil"
)

const insertReadingSQL = `INSERT INTO sensor_readings
	(site_code, site_name, borough, lat, lon, sensor_type, pollutant, year, month, value, averaging_period)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type reading struct {
	site      string
	borough   string
	sensor    string
	pollutant string
	year      int
	month     int
	value     float64
}

func seedReadings(t *testing.T, db *testutil.TestDB, readings []reading) {
	t.Helper()
	ctx := context.Background()
	for _, r := range readings {
		_, err := db.Pool.Exec(ctx, insertReadingSQL,
			r.site, "Site "+r.site, r.borough, 51.45, -0.22,
			r.sensor, r.pollutant, r.year, r.month, r.value, "Month")
		if err != nil {
			t.Fatalf("seeding reading %s: %v", r.site, err)
		}
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedReadings(t, db, []reading{
		{"WA001", "Wandsworth", "Clarity", "NO2", 2022, 1, 40.0},
		{"WA001", "Wandsworth", "Clarity", "NO2", 2022, 2, 50.0},
		{"WA002", "Wandsworth", "Clarity", "NO2", 2022, 1, 30.0},
		{"RI001", "Richmond", "DT", "PM2.5", 2022, 1, 12.0},
	})

	client, err := sensordata.NewClient(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}

	ctx := context.Background()

	summaries, err := client.Aggregate(ctx, sensordata.Query{})
	if err != nil {
		t.Fatalf("Aggregate() = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Aggregate() groups = %d, want 2: %+v", len(summaries), summaries)
	}

	// Ordered by borough: Richmond first, then Wandsworth.
	if summaries[0].Borough != "Richmond" || summaries[0].Readings != 1 {
		t.Errorf("first group = %+v", summaries[0])
	}
	wands := summaries[1]
	if wands.Borough != "Wandsworth" || wands.Pollutant != "NO2" {
		t.Fatalf("second group = %+v", wands)
	}
	if wands.Sites != 2 || wands.Readings != 3 {
		t.Errorf("Wandsworth sites = %d, readings = %d, want 2 and 3", wands.Sites, wands.Readings)
	}
	if wands.Mean != 40.0 || wands.Min != 30.0 || wands.Max != 50.0 {
		t.Errorf("Wandsworth stats = mean %v min %v max %v", wands.Mean, wands.Min, wands.Max)
	}

	// Filter scoping drops the Richmond group.
	year := 2022
	scoped, err := client.Aggregate(ctx, sensordata.Query{
		Boroughs:  []string{"Wandsworth"},
		Pollutant: "NO2",
		Year:      &year,
	})
	if err != nil {
		t.Fatalf("Aggregate(scoped) = %v", err)
	}
	if len(scoped) != 1 || scoped[0].Borough != "Wandsworth" {
		t.Errorf("scoped = %+v", scoped)
	}
}

func TestListUniqueValues(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedReadings(t, db, []reading{
		{"WA001", "Wandsworth", "Clarity", "NO2", 2022, 1, 40.0},
		{"RI001", "Richmond", "DT", "PM2.5", 2023, 1, 12.0},
		{"ME001", "Merton", "Automatic", "NO2", 2022, 1, 35.0},
	})

	client, err := sensordata.NewClient(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}

	ctx := context.Background()

	boroughs, err := client.ListUniqueValues(ctx, "borough")
	if err != nil {
		t.Fatalf("ListUniqueValues(borough) = %v", err)
	}
	want := []string{"Merton", "Richmond", "Wandsworth"}
	if len(boroughs) != len(want) {
		t.Fatalf("boroughs = %v, want %v", boroughs, want)
	}
	for i := range want {
		if boroughs[i] != want[i] {
			t.Errorf("boroughs[%d] = %q, want %q", i, boroughs[i], want[i])
		}
	}

	years, err := client.ListUniqueValues(ctx, "year")
	if err != nil {
		t.Fatalf("ListUniqueValues(year) = %v", err)
	}
	if len(years) != 2 || years[0] != "2022" || years[1] != "2023" {
		t.Errorf("years = %v", years)
	}
}

func TestStreamRows(t *testing.T) {
	t.Parallel()

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seedReadings(t, db, []reading{
		{"WA001", "Wandsworth", "Clarity", "NO2", 2022, 1, 40.0},
		{"WA001", "Wandsworth", "Clarity", "NO2", 2022, 2, 50.0},
		{"WA002", "Wandsworth", "Clarity", "NO2", 2022, 1, 30.0},
	})

	client, err := sensordata.NewClient(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}

	var rows []sensordata.Row
	err = client.StreamRows(context.Background(), sensordata.Query{}, 2, func(r sensordata.Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamRows() = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("streamed %d rows, want limit of 2", len(rows))
	}
	// Ordered by borough, site_code, year, month.
	if rows[0].SiteCode != "WA001" || rows[0].Month != 1 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].SiteCode != "WA001" || rows[1].Month != 2 {
		t.Errorf("second row = %+v", rows[1])
	}
}
