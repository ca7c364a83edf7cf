// Package config loads the wrfpipe configuration: global settings from
// a TOML file plus per-case run descriptions
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/pipeline"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Model         ModelConfig         `toml:"model"`
	MPI           MPIConfig           `toml:"mpi"`
	Verify        VerifyConfig        `toml:"verify"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Batch         BatchConfig         `toml:"batch"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ScratchRoot  string `toml:"scratch_root"`
	OutputRoot   string `toml:"output_root"`
	DataRoot     string `toml:"data_root"`
	TemplateDir  string `toml:"template_dir"`
	DatabasePath string `toml:"database_path"`
	KeepScratch  bool   `toml:"keep_scratch"`
}

// ModelConfig locates the model installations
type ModelConfig struct {
	WPSDir       string `toml:"wps_dir"`
	WRFDir       string `toml:"wrf_dir"`
	ChemUtilsDir string `toml:"chem_utils_dir"`
	Vtable       string `toml:"vtable"`
	BioEmissData string `toml:"bio_emiss_data"`
	MozartData   string `toml:"mozart_data"`
	// EnrichScripts lists site-local met_em enrichment scripts, run in
	// order between metgrid and real; each must be an executable path
	EnrichScripts []string `toml:"enrich_scripts"`
}

// MPIConfig holds the launcher and per-executable process counts
type MPIConfig struct {
	Command string `toml:"command"`
	Geogrid int    `toml:"geogrid"`
	Metgrid int    `toml:"metgrid"`
	Real    int    `toml:"real"`
	WRF     int    `toml:"wrf"`
}

// VerifyConfig holds verifier settings
type VerifyConfig struct {
	// MarkersFile points to an optional YAML file with extra log markers
	MarkersFile string `toml:"markers_file"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// BatchConfig holds scheduled-run settings
type BatchConfig struct {
	// Schedule is a cron expression; empty disables scheduled runs
	Schedule string `toml:"schedule"`
	// Cases lists the case files a scheduled batch runs, in order
	Cases []string `toml:"cases"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ScratchRoot:  filepath.Join(home, ".wrfpipe", "scratch"),
			OutputRoot:   filepath.Join(home, ".wrfpipe", "output"),
			TemplateDir:  filepath.Join(home, ".wrfpipe", "templates"),
			DatabasePath: filepath.Join(home, ".wrfpipe", "wrfpipe.db"),
		},
		Model: ModelConfig{
			Vtable: "Vtable.GFS",
		},
		MPI: MPIConfig{
			Command: "mpirun",
			Geogrid: 4,
			Metgrid: 4,
			Real:    8,
			WRF:     16,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.ScratchRoot = ExpandPath(cfg.General.ScratchRoot)
	cfg.General.OutputRoot = ExpandPath(cfg.General.OutputRoot)
	cfg.General.DataRoot = ExpandPath(cfg.General.DataRoot)
	cfg.General.TemplateDir = ExpandPath(cfg.General.TemplateDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Model.WPSDir = ExpandPath(cfg.Model.WPSDir)
	cfg.Model.WRFDir = ExpandPath(cfg.Model.WRFDir)
	cfg.Model.ChemUtilsDir = ExpandPath(cfg.Model.ChemUtilsDir)
	for i, s := range cfg.Model.EnrichScripts {
		cfg.Model.EnrichScripts[i] = ExpandPath(s)
	}
	cfg.Verify.MarkersFile = ExpandPath(cfg.Verify.MarkersFile)

	return cfg, nil
}

// Paths assembles the pipeline path set from the configuration
func (c *Config) Paths() pipeline.Paths {
	return pipeline.Paths{
		WPS:           c.Model.WPSDir,
		WRF:           c.Model.WRFDir,
		ChemUtils:     c.Model.ChemUtilsDir,
		Templates:     c.General.TemplateDir,
		Vtable:        c.Model.Vtable,
		BioEmissData:  c.Model.BioEmissData,
		MozartData:    c.Model.MozartData,
		EnrichScripts: c.Model.EnrichScripts,
	}
}

// MPISettings converts the MPI section to the pipeline's form
func (c *Config) MPISettings() pipeline.MPI {
	return pipeline.MPI{
		Geogrid: c.MPI.Geogrid,
		Metgrid: c.MPI.Metgrid,
		Real:    c.MPI.Real,
		WRF:     c.MPI.WRF,
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wrfpipe", "config.toml")
}

// Case describes one model run in a TOML case file
type Case struct {
	Name    string       `toml:"name"`
	Comment string       `toml:"comment"`
	Start   string       `toml:"start"`
	End     string       `toml:"end"`
	Domains []CaseDomain `toml:"domains"`
	// DataRoot overrides the global meteorological data root
	DataRoot string `toml:"data_root"`
}

// CaseDomain is one nested domain's grid geometry in a case file
type CaseDomain struct {
	SpacingM float64 `toml:"spacing_m"`
	EWE      int     `toml:"e_we"`
	ESN      int     `toml:"e_sn"`
}

// caseDateLayouts are the accepted date formats in case files
var caseDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadCase reads and validates a case file, combining it with the
// global roots into a RunConfig
func LoadCase(path string, global *Config) (*domain.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case file: %w", err)
	}

	var c Case
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing case file %s: %w", path, err)
	}

	start, err := parseCaseDate(c.Start)
	if err != nil {
		return nil, fmt.Errorf("case %s: start: %w", path, err)
	}
	end, err := parseCaseDate(c.End)
	if err != nil {
		return nil, fmt.Errorf("case %s: end: %w", path, err)
	}

	cfg := &domain.RunConfig{
		Case:        c.Name,
		Comment:     c.Comment,
		Start:       start,
		End:         end,
		OutputRoot:  global.General.OutputRoot,
		ScratchRoot: global.General.ScratchRoot,
		DataRoot:    global.General.DataRoot,
	}
	if c.DataRoot != "" {
		cfg.DataRoot = ExpandPath(c.DataRoot)
	}
	for _, d := range c.Domains {
		cfg.Domains = append(cfg.Domains, domain.DomainSpec{
			SpacingM: d.SpacingM,
			ExtentWE: d.EWE,
			ExtentSN: d.ESN,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("case %s: %w", path, err)
	}
	return cfg, nil
}

func parseCaseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range caseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
