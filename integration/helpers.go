//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TemplatesDir returns the repository's starter template directory
func TemplatesDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(filename), "..", "templates")
}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// writeScript installs an executable shell script standing in for one of
// the external model tools
func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// toolDirs holds the fake installation layout the pipeline expects
type toolDirs struct {
	WPS      string
	WRF      string
	Chem     string
	DataRoot string
}

// fakeTools builds a complete fake tool installation: every executable
// the stage list invokes, the static table directories, the variable
// table, and one dated meteorological input file. Each script emits the
// completion marker its real counterpart prints.
func fakeTools(t *testing.T) toolDirs {
	t.Helper()

	root := t.TempDir()
	d := toolDirs{
		WPS:      filepath.Join(root, "wps"),
		WRF:      filepath.Join(root, "wrf"),
		Chem:     filepath.Join(root, "chem"),
		DataRoot: filepath.Join(root, "data"),
	}
	for _, dir := range []string{d.WPS, d.WRF, d.Chem, d.DataRoot,
		filepath.Join(d.WPS, "geogrid"), filepath.Join(d.WPS, "metgrid")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	writeScript(t, d.WPS, "geogrid.exe",
		`echo "Successful completion of program geogrid.exe" > geogrid.log
touch geo_em.d01.nc`)
	writeScript(t, d.WPS, "ungrib.exe",
		`echo "Successful completion of program ungrib.exe"
touch FILE:2020-07-10_00`)
	writeScript(t, d.WPS, "metgrid.exe",
		`echo "Successful completion of program metgrid.exe" > metgrid.log
touch met_em.d01.2020-07-10_00:00:00.nc`)
	writeScript(t, d.WRF, "real.exe",
		`echo "SUCCESS COMPLETE REAL_EM INIT" > rsl.out.0000
touch wrfinput_d01 wrfbdy_d01`)
	writeScript(t, d.WRF, "wrf.exe",
		`echo "SUCCESS COMPLETE WRF" > rsl.out.0000
touch wrfout_d01_2020-07-10_00:00:00`)
	writeScript(t, d.Chem, "megan_bio_emiss",
		`cat > /dev/null
echo "bio_emiss completed successfully"`)
	writeScript(t, d.Chem, "mozbc",
		`cat > /dev/null
echo "bc_wrfchem completed successfully"`)

	if err := os.WriteFile(filepath.Join(d.WPS, "Vtable.GFS"), []byte("GRIB1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d.DataRoot, "fnl_20200710_00_00"), []byte("grib"), 0644); err != nil {
		t.Fatal(err)
	}
	return d
}
