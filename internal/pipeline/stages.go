package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/namelist"
	"github.com/polarmet/wrfpipe/internal/params"
	"github.com/polarmet/wrfpipe/internal/verify"
	"github.com/polarmet/wrfpipe/internal/workspace"
)

// wpsDateLayout is the date format the WPS and model namelists expect
const wpsDateLayout = "2006-01-02_15:04:05"

// Paths locates the model installations and template directory. All
// fields are absolute directories.
type Paths struct {
	// WPS holds geogrid.exe, ungrib.exe, metgrid.exe and the Vtable set
	WPS string
	// WRF holds real.exe and wrf.exe
	WRF string
	// ChemUtils holds the chemistry preprocessors (megan_bio_emiss, mozbc)
	ChemUtils string
	// Templates holds the namelist template files
	Templates string

	// Vtable is the variable table matched to the input data set,
	// e.g. "Vtable.GFS"
	Vtable string
	// BioEmissData and MozartData locate the static chemistry inputs
	BioEmissData string
	MozartData   string

	// EnrichScripts are site-local scripts run in order between metgrid
	// and real to add ocean fields (chlorophyll-a, dissolved DMS) to the
	// met_em files; absolute paths to executables
	EnrichScripts []string
}

// MPI sets the process count per parallel executable. Zero runs the
// executable serially.
type MPI struct {
	Geogrid int
	Metgrid int
	Real    int
	WRF     int
}

// DefaultMPI matches the node geometry the pipeline is normally run on
func DefaultMPI() MPI {
	return MPI{Geogrid: 4, Metgrid: 4, Real: 8, WRF: 16}
}

// BuiltinStages returns the fixed, ordered stage list:
// geogrid, ungrib, metgrid, any configured met_em enrichment scripts,
// real (two passes), megan_bio_emiss, mozbc, wrf. The order is a hard
// dependency chain; each stage consumes files the previous one
// produced.
func BuiltinStages(p Paths, mpi MPI) []Stage {
	wps := Template{Src: filepath.Join(p.Templates, "namelist.wps.tpl"), Dst: "namelist.wps"}
	input := Template{Src: filepath.Join(p.Templates, "namelist.input.tpl"), Dst: "namelist.input"}

	stages := []Stage{
		{
			Name:      "geogrid",
			Kind:      verify.KindGeogrid,
			Exe:       "geogrid.exe",
			MPIProcs:  mpi.Geogrid,
			Templates: []Template{wps},
			LogFile:   "geogrid.log",
			Steps:     []Step{{Bindings: wpsBindings}},
		},
		{
			Name:      "ungrib",
			Kind:      verify.KindUngrib,
			Exe:       "ungrib.exe",
			Templates: []Template{wps},
			Steps:     []Step{{Bindings: wpsBindings}},
		},
		{
			Name:      "metgrid",
			Kind:      verify.KindMetgrid,
			Exe:       "metgrid.exe",
			MPIProcs:  mpi.Metgrid,
			Templates: []Template{wps},
			LogFile:   "metgrid.log",
			Steps:     []Step{{Bindings: wpsBindings}},
		},
	}

	for _, script := range p.EnrichScripts {
		stages = append(stages, enrichStage(script))
	}

	stages = append(stages,
		Stage{
			// real runs twice: first with the biogenic branch off to
			// produce clean initial and boundary files, then with the
			// seasonal emission setting the solver will see
			Name:      "real",
			Kind:      verify.KindReal,
			Exe:       "real.exe",
			MPIProcs:  mpi.Real,
			Templates: []Template{input},
			LogFile:   "rsl.out.0000",
			Steps: []Step{
				{Name: "init", Bindings: func(cfg *domain.RunConfig) (namelist.Bindings, error) {
					return inputBindings(cfg, 0)
				}},
				{Name: "chem", Bindings: func(cfg *domain.RunConfig) (namelist.Bindings, error) {
					return inputBindings(cfg, seasonalBioOpt(cfg))
				}},
			},
		},
		Stage{
			Name: "megan_bio_emiss",
			Kind: verify.KindMegan,
			Exe:  "megan_bio_emiss",
			Templates: []Template{
				{Src: filepath.Join(p.Templates, "megan_bioemiss.inp.tpl"), Dst: "megan_bioemiss.inp"},
			},
			StdinFile: "megan_bioemiss.inp",
			Precondition: func(cfg *domain.RunConfig) (bool, string) {
				if !cfg.BioSeason() {
					return false, fmt.Sprintf("biogenic emissions off for %s starts", cfg.Start.Month())
				}
				return true, ""
			},
			Steps: []Step{{Bindings: chemBindings}},
		},
		Stage{
			Name: "mozbc",
			Kind: verify.KindMozbc,
			Exe:  "mozbc",
			Templates: []Template{
				{Src: filepath.Join(p.Templates, "mozbc.inp.tpl"), Dst: "mozbc.inp"},
			},
			StdinFile: "mozbc.inp",
			Steps:     []Step{{Bindings: chemBindings}},
		},
		Stage{
			Name:      "wrf",
			Kind:      verify.KindWRF,
			Exe:       "wrf.exe",
			MPIProcs:  mpi.WRF,
			Templates: []Template{input},
			LogFile:   "rsl.out.0000",
			Steps: []Step{{Bindings: func(cfg *domain.RunConfig) (namelist.Bindings, error) {
				return inputBindings(cfg, seasonalBioOpt(cfg))
			}}},
		},
	)
	return stages
}

// enrichDateLayout is the bare date form the enrichment scripts take
const enrichDateLayout = "2006-01-02"

// enrichStage wraps one met_em enrichment script as a pipeline stage.
// The scripts rewrite the met_em files metgrid produced, adding ocean
// fields real will ingest, so they sit between metgrid and real. They
// take the simulation directory and the run's date span as arguments
// and print no completion sentence; the exit status decides.
func enrichStage(script string) Stage {
	name := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	return Stage{
		Name: name,
		Kind: verify.KindEnrich,
		Exe:  script,
		ArgsFn: func(cfg *domain.RunConfig) []string {
			// The script runs inside scratch, where the met_em files are
			return []string{".", cfg.Start.Format(enrichDateLayout), cfg.End.Format(enrichDateLayout)}
		},
		Steps: []Step{{Bindings: func(*domain.RunConfig) (namelist.Bindings, error) {
			return namelist.Bindings{}, nil
		}}},
	}
}

// seasonalBioOpt returns the model's biogenic emission option for the
// run's season: 3 selects the MEGAN scheme, 0 disables the branch
func seasonalBioOpt(cfg *domain.RunConfig) int {
	if cfg.BioSeason() {
		return 3
	}
	return 0
}

// commonBindings carries the values shared by every stage template
func commonBindings(cfg *domain.RunConfig) namelist.Bindings {
	b := namelist.Bindings{}
	b.Set("CASE", cfg.Case)
	b.Set("START_DATE", cfg.Start.Format(wpsDateLayout))
	b.Set("END_DATE", cfg.End.Format(wpsDateLayout))
	b.Set("MAX_DOM", cfg.MaxDom())

	var dx, ewe, esn []string
	for _, d := range cfg.Domains {
		dx = append(dx, fmt.Sprintf("%g", d.SpacingM))
		ewe = append(ewe, fmt.Sprintf("%d", d.ExtentWE))
		esn = append(esn, fmt.Sprintf("%d", d.ExtentSN))
	}
	b.Set("DX_LIST", namelist.PerDomain(dx))
	b.Set("E_WE_LIST", namelist.PerDomain(ewe))
	b.Set("E_SN_LIST", namelist.PerDomain(esn))
	return b
}

// wpsBindings are the values for namelist.wps (geogrid, ungrib, metgrid)
func wpsBindings(cfg *domain.RunConfig) (namelist.Bindings, error) {
	b := commonBindings(cfg)
	b.Set("INTERVAL_SECONDS", 21600)
	return b, nil
}

// inputBindings are the values for namelist.input (real and wrf). The
// spectral nudging wavenumbers are derived from the outermost domain,
// the only one the large-scale correction applies to.
func inputBindings(cfg *domain.RunConfig, bioOpt int) (namelist.Bindings, error) {
	derived, err := params.Derive(cfg, 0)
	if err != nil {
		return nil, err
	}

	b := commonBindings(cfg)
	b.Set("START_YEAR", cfg.Start.Year())
	b.Set("START_MONTH", fmt.Sprintf("%02d", cfg.Start.Month()))
	b.Set("START_DAY", fmt.Sprintf("%02d", cfg.Start.Day()))
	b.Set("START_HOUR", fmt.Sprintf("%02d", cfg.Start.Hour()))
	b.Set("END_YEAR", cfg.End.Year())
	b.Set("END_MONTH", fmt.Sprintf("%02d", cfg.End.Month()))
	b.Set("END_DAY", fmt.Sprintf("%02d", cfg.End.Day()))
	b.Set("END_HOUR", fmt.Sprintf("%02d", cfg.End.Hour()))
	b.Set("RUN_HOURS", int(cfg.End.Sub(cfg.Start)/time.Hour))
	b.Set("WAVENUM_X", derived.WavenumberX)
	b.Set("WAVENUM_Y", derived.WavenumberY)
	b.Set("BIO_EMISS_OPT", bioOpt)
	return b, nil
}

// chemBindings are the values for the chemistry preprocessor control
// files (megan_bio_emiss, mozbc)
func chemBindings(cfg *domain.RunConfig) (namelist.Bindings, error) {
	b := namelist.Bindings{}
	b.Set("MAX_DOM", cfg.MaxDom())
	b.Set("START_DATE", cfg.Start.Format(wpsDateLayout))
	b.Set("END_DATE", cfg.End.Format(wpsDateLayout))
	return b, nil
}

// RunInputs declares what must be staged into scratch before the first
// stage: the executables themselves (linked, never copied), the variable
// table, the geogrid table set, and the dated meteorological input files
// under the case's data root
func RunInputs(cfg *domain.RunConfig, p Paths) []workspace.Input {
	inputs := []workspace.Input{
		{Source: filepath.Join(p.WPS, "geogrid.exe"), Link: true},
		{Source: filepath.Join(p.WPS, "ungrib.exe"), Link: true},
		{Source: filepath.Join(p.WPS, "metgrid.exe"), Link: true},
		{Source: filepath.Join(p.WRF, "real.exe"), Link: true},
		{Source: filepath.Join(p.WRF, "wrf.exe"), Link: true},
		{Source: filepath.Join(p.ChemUtils, "megan_bio_emiss"), Link: true},
		{Source: filepath.Join(p.ChemUtils, "mozbc"), Link: true},
		{Source: filepath.Join(p.WPS, "geogrid"), Link: true},
		{Source: filepath.Join(p.WPS, "metgrid"), Link: true},
		{Source: filepath.Join(p.WPS, p.Vtable), Link: true},
	}
	if cfg.DataRoot != "" {
		inputs = append(inputs, workspace.Input{
			Source: filepath.Join(cfg.DataRoot, "fnl_*"),
		})
	}
	if p.BioEmissData != "" {
		inputs = append(inputs, workspace.Input{Source: p.BioEmissData, Link: true})
	}
	if p.MozartData != "" {
		inputs = append(inputs, workspace.Input{Source: p.MozartData, Link: true})
	}
	return inputs
}

// LinkGribFiles creates the GRIBFILE.AAA, GRIBFILE.AAB, ... symlinks
// ungrib reads, covering every file in scratch matching the pattern.
// This replaces the stock link_grib.csh shell script.
func LinkGribFiles(ws *workspace.Workspace, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(ws.ScratchDir, pattern))
	if err != nil {
		return fmt.Errorf("bad grib pattern %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return &workspace.MissingInputError{Source: pattern}
	}
	for i, src := range matches {
		dst := filepath.Join(ws.ScratchDir, "GRIBFILE."+gribSuffix(i))
		if err := relink(src, dst); err != nil {
			return fmt.Errorf("linking %s: %w", src, err)
		}
	}
	return nil
}

// relink replaces dst with a relative symlink to a sibling file, so the
// link survives the scratch directory being moved
func relink(src, dst string) error {
	os.Remove(dst)
	return os.Symlink(filepath.Base(src), dst)
}

// gribSuffix is the three-letter counting scheme ungrib expects:
// AAA, AAB, ..., AAZ, ABA, ...
func gribSuffix(i int) string {
	const letters = 26
	c := i % letters
	b := (i / letters) % letters
	a := (i / letters / letters) % letters
	return string([]byte{'A' + byte(a), 'A' + byte(b), 'A' + byte(c)})
}
