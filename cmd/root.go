package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"drivefetch/downloader"
	"drivefetch/internal"
)

var (
	outputDir  string
	outputName string
	quiet      bool
	overwrite  bool
	keepTimes  bool
	failFast   bool
	proxyURL   string
	configPath string
	debug      bool
	logLevel   string
	logFile    string
	timeout    int
	config     *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "drivefetch [flags] <url-or-id>...",
	Short:   "Download publicly shared Google Drive files and folders",
	Version: "v1.0.0",
	Long: `drivefetch downloads files and whole folder trees shared with
"Anyone with the link", without signing in.

Inputs may be file links, folder links, open?id= links or bare identifiers.
Folders are mirrored recursively; files already present locally are skipped
unless --overwrite is given.

Examples:
  drivefetch https://drive.google.com/file/d/1AbCdEfGhIjK/view
  drivefetch -d backups https://drive.google.com/drive/folders/0BxYz123abcdEF
  drivefetch -o report.pdf 1AbCdEfGhIjKlMnOp
  drivefetch -t --fail-fast --proxy socks5://127.0.0.1:1080 <url> <url>

Environment Variables:
  DRIVEFETCH_DIR        Destination directory
  DRIVEFETCH_TIMEOUT    HTTP timeout in seconds (0 = none)
  DRIVEFETCH_PROXY      Proxy URL
  DRIVEFETCH_TIMES      Honor listing modification times (true/false)
  DRIVEFETCH_FAIL_FAST  Stop at the first error (true/false)
  DRIVEFETCH_LOG_LEVEL  debug, info, warn or error

Variables may also be placed in a .env file in the working directory.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		internal.LogDebug("Configuration loaded: dir=%s, timeout=%d, retries=%d, times=%v, overwrite=%v, fail_fast=%v",
			config.OutputDir, config.Timeout, config.MaxRetries, config.HonorModTimes, config.Overwrite, config.FailFast)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateArguments(args); err != nil {
			var validationErr *internal.ValidationError
			if errors.As(err, &validationErr) {
				internal.LogValidationError(validationErr)
			}
			return err
		}

		return executeDownloadWorkflow(args)
	},
}

// loadConfiguration layers defaults, .env, the optional YAML file, environment
// variables and finally explicitly set flags
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()

	if err := internal.LoadDotEnv(".env"); err != nil {
		return err
	}

	if configPath == "" {
		configPath = os.Getenv(internal.EnvPrefix + "CONFIG")
	}
	if configPath != "" {
		if err := config.LoadFromFile(configPath); err != nil {
			return err
		}
	}

	config.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("dir") {
		config.OutputDir = outputDir
	}
	if flags.Changed("quiet") {
		config.Quiet = quiet
	}
	if flags.Changed("overwrite") {
		config.Overwrite = overwrite
	}
	if flags.Changed("times") {
		config.HonorModTimes = keepTimes
	}
	if flags.Changed("fail-fast") {
		config.FailFast = failFast
	}
	if flags.Changed("proxy") {
		config.ProxyURL = proxyURL
	}
	if flags.Changed("timeout") {
		config.Timeout = timeout
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	config.QuietMode = config.Quiet

	if config.ProxyURL != "" {
		if err := validateProxyURL(config.ProxyURL); err != nil {
			return err
		}
	}

	return config.ValidateConfig()
}

// validateArguments validates positional arguments against the flags
func validateArguments(args []string) error {
	if len(args) == 0 {
		return internal.NewValidationError("input", "at least one URL or identifier is required")
	}

	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			return internal.NewValidationError("input", "empty URL or identifier")
		}
	}

	if outputName != "" && len(args) > 1 {
		return internal.NewValidationErrorWithValue("output", "an output file name can only be used with a single input", outputName).
			WithSuggestion("Drop --output or download the inputs one at a time").
			WithContext("inputs", len(args))
	}

	if strings.ContainsAny(outputName, `/\`) {
		return internal.NewValidationErrorWithValue("output", "must be a file name, not a path", outputName).
			WithSuggestion("Use --dir to choose the destination directory")
	}

	return nil
}

// validateProxyURL validates the proxy URL format
func validateProxyURL(proxyURL string) error {
	if !strings.HasPrefix(proxyURL, "http://") &&
		!strings.HasPrefix(proxyURL, "https://") &&
		!strings.HasPrefix(proxyURL, "socks5://") {
		return internal.NewValidationErrorWithValue("proxy", "unsupported proxy scheme", proxyURL).
			WithSuggestion("Use http://proxy:8080, https://proxy:8443 or socks5://proxy:1080")
	}
	return nil
}

func init() {
	config = internal.DefaultConfig()

	rootCmd.Flags().StringVarP(&outputDir, "dir", "d", config.OutputDir, "Destination directory (env: DRIVEFETCH_DIR)")
	rootCmd.Flags().StringVarP(&outputName, "output", "o", "", "Output file name, single file input only")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output (env: DRIVEFETCH_QUIET)")
	rootCmd.Flags().BoolVarP(&overwrite, "overwrite", "w", false, "Download files even if they already exist (env: DRIVEFETCH_OVERWRITE)")
	rootCmd.Flags().BoolVarP(&keepTimes, "times", "t", false, "Use listing modification times for freshness checks and stamp downloaded files (env: DRIVEFETCH_TIMES)")
	rootCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first error instead of continuing (env: DRIVEFETCH_FAIL_FAST)")
	rootCmd.Flags().StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: DRIVEFETCH_PROXY)")
	rootCmd.Flags().IntVar(&timeout, "timeout", config.Timeout, "HTTP timeout in seconds, 0 for none (env: DRIVEFETCH_TIMEOUT)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file (env: DRIVEFETCH_CONFIG)")

	// Logging flags
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging with file and line information (env: DRIVEFETCH_DEBUG)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: DRIVEFETCH_LOG_LEVEL)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: DRIVEFETCH_LOG_FILE)")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// executeDownloadWorkflow runs every input through a single session and prints a summary
func executeDownloadWorkflow(inputs []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			internal.LogInfo("Received signal %v, stopping after the current chunk", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	engine := downloader.NewDefaultEngine(config, outputName)
	session := engine.Session()
	internal.LogInfo("Session %s: %d input(s) into %s", session.ID, len(inputs), config.OutputDir)

	err := engine.Run(ctx, inputs, config.OutputDir)

	if !config.Quiet {
		printSummary(session)
	}
	return err
}

func printSummary(session *downloader.Session) {
	downloaded := session.Downloaded()
	skipped := session.Skipped()
	errs := session.Errors()

	fmt.Println()
	fmt.Printf("Downloaded: %d\n", len(downloaded))
	for _, path := range downloaded {
		fmt.Printf("  %s\n", path)
	}
	if len(skipped) > 0 {
		fmt.Printf("Skipped (already present): %d\n", len(skipped))
	}
	if len(errs) > 0 {
		fmt.Printf("Errors: %d\n", len(errs))
		for _, err := range errs {
			fmt.Printf("  %v\n", err)
		}
	}
}
