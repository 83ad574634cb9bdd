package probe

import (
	"context"
	"errors"
	"testing"

	"soartrack/pkg/airspace"
	"soartrack/pkg/model"
	"soartrack/pkg/sites"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{
			Name: "Success Probe",
			Check: func(ctx context.Context) error {
				return nil
			},
			Critical: true,
		},
		{
			Name: "Failure Probe (Non-Critical)",
			Check: func(ctx context.Context) error {
				return errors.New("minor issue")
			},
			Critical: false,
		},
	}

	results := Run(context.Background(), probes)

	if len(results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results))
	}

	if results[0].Error != nil {
		t.Errorf("Expected success probe to pass, got error: %v", results[0].Error)
	}

	if results[1].Error == nil {
		t.Error("Expected failure probe to fail, got nil")
	}
}

func TestAnalyzeResults(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name: "All Pass",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: nil},
			},
			wantErr: false,
		},
		{
			name: "Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
		{
			name: "Non-Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
			},
			wantErr: false,
		},
		{
			name: "Mixed Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
				{Probe: Probe{Name: "P2", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestZoneDataset(t *testing.T) {
	ctx := context.Background()

	empty := airspace.NewFromZones(nil, 0)
	if err := ZoneDataset(empty).Check(ctx); err == nil {
		t.Error("Expected empty evaluator to fail the check")
	}

	zone := model.RestrictedZone{
		ID:       "test-zone",
		Name:     "Test Zone",
		Category: model.ZoneDanger,
		Ceiling:  model.AltitudeBound{Value: 3000, Reference: model.RefMSL},
		Boundary: []model.Coordinate{
			{Lat: 46.0, Lon: 7.0}, {Lat: 46.0, Lon: 8.0},
			{Lat: 47.0, Lon: 8.0}, {Lat: 47.0, Lon: 7.0},
		},
	}
	loaded := airspace.NewFromZones([]model.RestrictedZone{zone}, 0)
	if err := ZoneDataset(loaded).Check(ctx); err != nil {
		t.Errorf("Expected loaded evaluator to pass, got %v", err)
	}
}

func TestSiteDirectory(t *testing.T) {
	ctx := context.Background()

	if err := SiteDirectory(sites.New(nil)).Check(ctx); err == nil {
		t.Error("Expected empty directory to fail the check")
	}

	dir := sites.New([]model.Site{
		{ID: "lz", Name: "Test LZ", Type: model.SiteLanding, Lat: 46.9, Lon: 8.5},
	})
	if err := SiteDirectory(dir).Check(ctx); err != nil {
		t.Errorf("Expected populated directory to pass, got %v", err)
	}
}
