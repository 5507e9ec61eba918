package config

// Config holds app configuration.
type Config struct {
	// InputFile is the KDZ file to extract, or the metadata directory to
	// repack, depending on the subcommand.
	InputFile string `mapstructure:"input"`
	// OutputFile is the repacked KDZ file path (repack only).
	OutputFile string `mapstructure:"output"`
	// DestDir is the directory extract writes into. Empty means "print a
	// listing instead of extracting" (see DryRun).
	DestDir string `mapstructure:"dest"`

	// NoVerify skips the DZ data_hash pass over every chunk's compressed
	// bytes during extract. Header CRC and chunk_hdrs_hash are always
	// checked regardless.
	NoVerify bool `mapstructure:"no_verify"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
