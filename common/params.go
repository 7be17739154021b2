package common

import (
	"flag"
	"os"
)

type Params struct {
	logLevel      string
	logFile       string
	settingsFile  string
	rawStrategy   string
	cacheSizeHint int
	pinNeighbours int
	dcrawPath     string
	metricsPort   int
	rootPath      string
}

func NewEmptyParams() *Params {
	return &Params{
		logLevel:      "INFO",
		pinNeighbours: DefaultPinNeighbours,
		dcrawPath:     DefaultDcrawPath,
	}
}

func ParseParams() *Params {
	params, err := ParseParamsFromArgs(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return params
}

func ParseParamsFromArgs(args []string) (*Params, error) {
	flags := flag.NewFlagSet("image-viewer", flag.ContinueOnError)
	logLevel := flags.String("logLevel", "INFO", "Log level: ERROR, WARN, INFO, DEBUG, Trace")
	logFile := flags.String("logFile", "", "Also write logs to the given file. Rotated automatically.")
	settingsFile := flags.String("settings", "", "YAML settings file with raw_strategy and cache_size_hint")
	rawStrategy := flags.String("rawStrategy", "", "Override RAW strategy: ultra_fast, fast, high_quality, ultra_quality")
	cacheSizeHint := flags.Int("cacheSize", 0, "Override image cache capacity (number of images)")
	pinNeighbours := flags.Int("pinNeighbours", DefaultPinNeighbours, "Number of images on both sides of the current image kept in cache")
	dcrawPath := flags.String("dcraw", DefaultDcrawPath, "dcraw executable used for full RAW decoding")
	metricsPort := flags.Int("metricsPort", 0, "Expose Prometheus metrics on this port. 0 disables.")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	return &Params{
		logLevel:      *logLevel,
		logFile:       *logFile,
		settingsFile:  *settingsFile,
		rawStrategy:   *rawStrategy,
		cacheSizeHint: *cacheSizeHint,
		pinNeighbours: *pinNeighbours,
		dcrawPath:     *dcrawPath,
		metricsPort:   *metricsPort,
		rootPath:      flags.Arg(0),
	}, nil
}

func (s *Params) LogLevel() string {
	return s.logLevel
}

func (s *Params) LogFile() string {
	return s.logFile
}

func (s *Params) SettingsFile() string {
	return s.settingsFile
}

func (s *Params) RawStrategy() string {
	return s.rawStrategy
}

func (s *Params) CacheSizeHint() int {
	return s.cacheSizeHint
}

func (s *Params) PinNeighbours() int {
	return s.pinNeighbours
}

func (s *Params) DcrawPath() string {
	return s.dcrawPath
}

func (s *Params) MetricsPort() int {
	return s.metricsPort
}

func (s *Params) RootPath() string {
	return s.rootPath
}
