package config

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-redis/redis"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DataDog/dd-trace-go/contrib/database/sql/parsedsn"
)

const (
	EnvVarPrefix = "PNGBOP"

	DefaultLogLevel           = "info"
	DefaultNumWorkers         = 2
	DefaultNumWriters         = 1
	DefaultCheckpointInterval = duration(5 * time.Second)
	DefaultCheckpointFile     = "checkpoint.json"
	DefaultFileType           = "plain"
	DefaultFormat             = "json"
	DefaultKeyPrefix          = "pngbop:"
	DefaultMaxPixels          = 100_000_000

	MinNumWorkers         = 1
	MaxNumWorkers         = 100
	MinNumWriters         = 1
	MaxNumWriters         = 100
	MinCheckpointInterval = duration(1 * time.Millisecond)
	MaxCheckpointInterval = duration(1 * time.Hour)
	MaxPixels             = 1 << 32
)

var (
	// VERSION gets set during build
	VERSION = "0.0.0"

	validFileTypes = map[string]struct{}{
		"plain": {},
		"gzip":  {},
	}

	validFormats = map[string]struct{}{
		"json":    {},
		"msgpack": {},
	}
)

type Config struct {
	CLI  *CLI
	TOML *TOML
}

type TOML struct {
	Config      *TOMLConfig      `toml:"config"`
	Limits      *TOMLLimits      `toml:"limits"`
	Source      *TOMLSource      `toml:"source"`
	Destination *TOMLDestination `toml:"destination"`
}

type TOMLConfig struct {
	LogLevel             string   `toml:"log_level"`
	NumWorkers           int      `toml:"num_workers"`
	NumWriters           int      `toml:"num_writers"`
	CheckpointFile       string   `toml:"checkpoint_file"`
	CheckpointInterval   duration `toml:"checkpoint_interval"`
	DisableCheckpointing bool     `toml:"disable_checkpointing"`
	StopOnError          bool     `toml:"stop_on_error"`
}

// TOMLLimits bounds image dimensions before any buffer is allocated. Zero
// width or height means unbounded.
type TOMLLimits struct {
	MaxWidth  uint32 `toml:"max_width"`
	MaxHeight uint32 `toml:"max_height"`
	MaxPixels uint64 `toml:"max_pixels"`
}

type TOMLSource struct {
	File     string `toml:"file"`
	FileType string `toml:"file_type"`
	BaseDir  string `toml:"base_dir"`
}

type TOMLDestination struct {
	Type         string `toml:"type"`
	DSN          string `toml:"dsn"`
	Dir          string `toml:"dir"`
	Format       string `toml:"format"`
	WriteSamples bool   `toml:"write_samples"`
	KeyPrefix    string `toml:"key_prefix"`
	CreateTable  bool   `toml:"create_table"`
}

type CLI struct {
	ConfigFile     string        `kong:"help='Path to the TOML config file',type='path',default='config.toml',short='c'"`
	DryRun         bool          `kong:"help='Parse and size every image without decoding it',short='n'"`
	ReportInterval time.Duration `kong:"help='Interval to report progress',default='5s',short='r'"`
	ReportOutput   string        `kong:"help='Output file for progress reports',short='o'"`
	DisableResume  bool          `kong:"help='Disable resuming from checkpoint',short='R'"`
	DisableColor   bool          `kong:"help='Disable color output',short='C'"`

	Debug   bool             `kong:"help='Enable debug output',short='d'"`
	Quiet   bool             `kong:"help='Disable showing pre/post output',short='q'"`
	Version kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`

	// Internal bits
	Ctx *kong.Context `kong:"-"`
}

func NewConfig() (*Config, error) {
	return newConfig(os.Args[1:])
}

func newConfig(args []string) (*Config, error) {
	// Attempt to load .env
	_ = godotenv.Load(".env")

	cli, err := readCLIArgs(args)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing CLI args")
	}

	tomlConfig, err := readTOML(cli.ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	return &Config{
		CLI:  cli,
		TOML: tomlConfig,
	}, nil
}

// SetTOMLDefaults creates missing sections and fills in unset fields.
func SetTOMLDefaults(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	if t.Config == nil {
		t.Config = &TOMLConfig{}
	}

	if t.Limits == nil {
		t.Limits = &TOMLLimits{}
	}

	if t.Source == nil {
		t.Source = &TOMLSource{}
	}

	if t.Destination == nil {
		t.Destination = &TOMLDestination{}
	}

	// Set defaults for [config]
	if t.Config.LogLevel == "" {
		t.Config.LogLevel = DefaultLogLevel
	}

	if t.Config.NumWorkers == 0 {
		t.Config.NumWorkers = DefaultNumWorkers
	}

	if t.Config.NumWriters == 0 {
		t.Config.NumWriters = DefaultNumWriters
	}

	if t.Config.CheckpointInterval == 0 {
		t.Config.CheckpointInterval = DefaultCheckpointInterval
	}

	if t.Config.CheckpointFile == "" {
		t.Config.CheckpointFile = DefaultCheckpointFile
	}

	// [limits]
	if t.Limits.MaxPixels == 0 {
		t.Limits.MaxPixels = DefaultMaxPixels
	}

	// [source]
	if t.Source.FileType == "" {
		t.Source.FileType = DefaultFileType
	}

	// [destination]
	if t.Destination.Format == "" {
		t.Destination.Format = DefaultFormat
	}

	if t.Destination.Type == "redis" && t.Destination.KeyPrefix == "" {
		t.Destination.KeyPrefix = DefaultKeyPrefix
	}

	return nil
}

func Validate(c *Config) error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateCLIArgs(c.CLI); err != nil {
		return errors.Wrap(err, "error validating CLI args")
	}

	if err := validateTOML(c.TOML); err != nil {
		return errors.Wrap(err, "error validating toml config")
	}

	return nil
}

func validateTOML(t *TOML) error {
	if t == nil {
		return errors.New("toml config cannot be nil")
	}

	// Validate [config]
	if err := validateTOMLConfig(t.Config); err != nil {
		return errors.Wrap(err, "config error(s)")
	}

	// Validate [limits]
	if err := validateTOMLLimits(t.Limits); err != nil {
		return errors.Wrap(err, "limits error(s)")
	}

	// Validate [source]
	if err := validateTOMLSource(t.Source); err != nil {
		return errors.Wrap(err, "error validating toml [source]")
	}

	// Validate [destination]
	if err := validateTOMLDestination(t.Destination); err != nil {
		return errors.Wrap(err, "destination error(s)")
	}

	return nil
}

func validateTOMLConfig(c *TOMLConfig) error {
	if c == nil {
		return errors.New("config cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "config.log_level %s is invalid", c.LogLevel)
	}

	if c.NumWorkers < MinNumWorkers || c.NumWorkers > MaxNumWorkers {
		return errors.Errorf("config.num_workers must be between %d and %d", MinNumWorkers, MaxNumWorkers)
	}

	if c.NumWriters < MinNumWriters || c.NumWriters > MaxNumWriters {
		return errors.Errorf("config.num_writers must be between %d and %d", MinNumWriters, MaxNumWriters)
	}

	if c.CheckpointInterval < MinCheckpointInterval || c.CheckpointInterval > MaxCheckpointInterval {
		return errors.Errorf("config.checkpoint_interval must be between %s and %s", MinCheckpointInterval, MaxCheckpointInterval)
	}

	if c.CheckpointFile == "" {
		return errors.New("config.checkpoint_file cannot be empty")
	}

	return nil
}

func validateTOMLLimits(l *TOMLLimits) error {
	if l == nil {
		return errors.New("limits cannot be empty")
	}

	if l.MaxPixels == 0 || l.MaxPixels > MaxPixels {
		return errors.Errorf("limits.max_pixels must be between 1 and %d", uint64(MaxPixels))
	}

	return nil
}

func validateTOMLSource(s *TOMLSource) error {
	if s == nil {
		return errors.New("source cannot be empty")
	}

	if s.File == "" {
		return errors.New("source.file cannot be empty")
	}

	// Check if .File exists
	info, err := os.Stat(s.File)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("source.file %s does not exist", s.File)
		}
		return errors.Wrapf(err, "unable to stat source.file %s", s.File)
	}

	if info.IsDir() {
		return errors.Errorf("source.file %s is a directory", s.File)
	}

	// Check if .FileType is valid
	if _, ok := validFileTypes[s.FileType]; !ok {
		return errors.Errorf("source.file_type %s is invalid", s.FileType)
	}

	if s.BaseDir != "" {
		info, err := os.Stat(s.BaseDir)
		if err != nil {
			return errors.Wrapf(err, "unable to stat source.base_dir %s", s.BaseDir)
		}

		if !info.IsDir() {
			return errors.Errorf("source.base_dir %s is not a directory", s.BaseDir)
		}
	}

	return nil
}

func validateTOMLDestination(d *TOMLDestination) error {
	if d == nil {
		return errors.New("destination cannot be empty")
	}

	if d.Type == "" {
		return errors.New("destination.type cannot be empty")
	}

	if _, ok := validFormats[d.Format]; !ok {
		return errors.Errorf("destination.format %s is invalid", d.Format)
	}

	if d.Type == "file" {
		if d.Dir == "" {
			return errors.New("destination.dir cannot be empty")
		}
		return nil
	}

	if d.DSN == "" {
		return errors.New("destination.dsn cannot be empty")
	}

	var err error

	switch d.Type {
	case "mysql":
		_, err = parsedsn.MySQL(d.DSN)
	case "postgres":
		_, err = parsedsn.Postgres(d.DSN)
	case "redis":
		_, err = redis.ParseURL(d.DSN)
	default:
		return errors.Errorf("destination.type %s is invalid", d.Type)
	}

	if err != nil {
		return errors.Wrap(err, "error validating destination.dsn")
	}

	return nil
}

func readCLIArgs(args []string) (*CLI, error) {
	cli := &CLI{}

	parser, err := kong.New(cli,
		kong.Name("pngbop"),
		kong.Description("Bulk PNG decoder: inflates and unfilters every image in a manifest"),
		kong.UsageOnError(),
		kong.DefaultEnvars(EnvVarPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{
			"version": VERSION,
		})
	if err != nil {
		return nil, errors.Wrap(err, "error building CLI parser")
	}

	cli.Ctx, err = parser.Parse(args)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing args")
	}

	if err := validateCLIArgs(cli); err != nil {
		return nil, errors.Wrap(err, "error validating args")
	}

	return cli, nil
}

func readTOML(file string) (*TOML, error) {
	// Attempt to load file
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "error reading file")
	}

	tomlConfig := &TOML{}

	if err := toml.Unmarshal(data, tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error parsing TOML config")
	}

	// Set defaults
	if err := SetTOMLDefaults(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error setting TOML defaults")
	}

	// Validate loaded config
	if err := validateTOML(tomlConfig); err != nil {
		return nil, errors.Wrap(err, "error validating TOML config")
	}

	return tomlConfig, nil
}

func validateCLIArgs(cli *CLI) error {
	if cli == nil {
		return errors.New("config cannot be nil")
	}

	if cli.ReportInterval <= 0 {
		return errors.New("report interval must be positive")
	}

	return nil
}

// Copied from https://www.kelche.co/blog/go/toml/
type duration time.Duration

func (d duration) String() string {
	return time.Duration(d).String()
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// Interval returns the checkpoint interval as a time.Duration.
func (c *TOMLConfig) Interval() time.Duration {
	return time.Duration(c.CheckpointInterval)
}
