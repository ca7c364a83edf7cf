package params

import (
	"errors"
	"testing"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
)

func testConfig(domains ...domain.DomainSpec) *domain.RunConfig {
	return &domain.RunConfig{
		Case:        "test",
		Start:       time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC),
		Domains:     domains,
		OutputRoot:  "/out",
		ScratchRoot: "/scratch",
	}
}

func TestDerive_Wavenumbers(t *testing.T) {
	tests := []struct {
		name     string
		spec     domain.DomainSpec
		wantX    int
		wantY    int
	}{
		// 100 km spacing, 50 cells: floor(100000*50/1000000) = 5
		{"documented example", domain.DomainSpec{SpacingM: 100000, ExtentWE: 50, ExtentSN: 50}, 5, 5},
		// extent 51 still floors to 5 on that axis
		{"floor behavior", domain.DomainSpec{SpacingM: 100000, ExtentWE: 50, ExtentSN: 51}, 5, 5},
		{"just above boundary", domain.DomainSpec{SpacingM: 100000, ExtentWE: 60, ExtentSN: 59}, 6, 5},
		{"small inner domain", domain.DomainSpec{SpacingM: 20000, ExtentWE: 100, ExtentSN: 80}, 2, 1},
		{"sub-scale domain", domain.DomainSpec{SpacingM: 4000, ExtentWE: 50, ExtentSN: 50}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(testConfig(tt.spec), 0)
			if err != nil {
				t.Fatalf("Derive() error = %v", err)
			}
			if got.WavenumberX != tt.wantX || got.WavenumberY != tt.wantY {
				t.Errorf("Derive() = (%d, %d), want (%d, %d)",
					got.WavenumberX, got.WavenumberY, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestDerive_InvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		spec domain.DomainSpec
	}{
		{"zero spacing", domain.DomainSpec{SpacingM: 0, ExtentWE: 50, ExtentSN: 50}},
		{"negative spacing", domain.DomainSpec{SpacingM: -100, ExtentWE: 50, ExtentSN: 50}},
		{"zero extent_we", domain.DomainSpec{SpacingM: 100000, ExtentWE: 0, ExtentSN: 50}},
		{"negative extent_sn", domain.DomainSpec{SpacingM: 100000, ExtentWE: 50, ExtentSN: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(testConfig(tt.spec), 0)
			var invalid *InvalidParameterError
			if !errors.As(err, &invalid) {
				t.Errorf("Derive() error = %v, want *InvalidParameterError", err)
			}
		})
	}
}

func TestDerive_DomainIndexOutOfRange(t *testing.T) {
	cfg := testConfig(domain.DomainSpec{SpacingM: 100000, ExtentWE: 50, ExtentSN: 50})

	for _, idx := range []int{-1, 1, 7} {
		_, err := Derive(cfg, idx)
		var invalid *InvalidParameterError
		if !errors.As(err, &invalid) {
			t.Errorf("Derive(idx=%d) error = %v, want *InvalidParameterError", idx, err)
		}
	}
}

func TestDerive_PerDomainRecompute(t *testing.T) {
	cfg := testConfig(
		domain.DomainSpec{SpacingM: 100000, ExtentWE: 50, ExtentSN: 50},
		domain.DomainSpec{SpacingM: 20000, ExtentWE: 150, ExtentSN: 100},
	)

	d0, err := Derive(cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	d1, err := Derive(cfg, 1)
	if err != nil {
		t.Fatal(err)
	}

	if d0.WavenumberX != 5 || d1.WavenumberX != 3 {
		t.Errorf("wavenumbers = %d, %d; want 5, 3", d0.WavenumberX, d1.WavenumberX)
	}
}
