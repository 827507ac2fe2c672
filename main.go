package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kwv/voxelscore/spectrum"
)

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile string
	LogLevel   string
	OutputDir  string // overrides outputDir from the config
	Format     string // render format, one of spectrum.RenderFormats
	OutputFile string
	HttpPort   int
	NoPublish  bool
}

// Runner is what the command tree drives. App implements it.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunScore() error
	RunRender(team, match string) error
	RunPredict(team, match string) error
	RunServe() error
}

func main() {
	if err := newRootCmd(NewApp()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the voxelscore command tree around app.
func newRootCmd(app Runner) *cobra.Command {
	var opts AppOptions

	rootCmd := &cobra.Command{
		Use:          "voxelscore",
		Short:        "Score declared spectrum usage against recorded RF occupancy",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %s", opts.LogLevel)
			}
			logrus.SetLevel(level)
			app.ApplyOptions(opts)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "Directory for reports and plots (default from config)")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score every configured match and write one JSON report per match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunScore()
		},
	}
	scoreCmd.Flags().BoolVar(&opts.NoPublish, "no-publish", false, "Do not publish reports to MQTT")

	renderCmd := &cobra.Command{
		Use:   "render <team> <match>",
		Short: "Score one match and plot its occupied and declared regions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunRender(args[0], args[1])
		},
	}
	renderCmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: "+strings.Join(spectrum.RenderFormats, ", ")+" (default from config)")

	predictCmd := &cobra.Command{
		Use:   "predict <team> <match>",
		Short: "Run the baseline forecaster on a match's occupancy and write its declarations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunPredict(args[0], args[1])
		},
	}
	predictCmd.Flags().StringVar(&opts.OutputFile, "output", "", "Output file (default <output-dir>/<team>_<match>_baseline.json)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Score every configured match and serve the results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe()
		},
	}
	serveCmd.Flags().IntVar(&opts.HttpPort, "port", 8080, "HTTP server port")
	serveCmd.Flags().BoolVar(&opts.NoPublish, "no-publish", false, "Do not publish reports to MQTT")

	rootCmd.AddCommand(scoreCmd, renderCmd, predictCmd, serveCmd)
	return rootCmd
}
