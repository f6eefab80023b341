// CLI for track analysis and the analysis HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/labstack/gommon/log"
	"github.com/nzoschke/trackscope/pkg/analysis"
	"github.com/nzoschke/trackscope/pkg/config"
	"github.com/nzoschke/trackscope/pkg/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Tempo, onset, energy and structure analysis",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|directory>",
	Short: "Analyze an audio file, or a directory of them into JSON sidecars",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		sampleRate, _ := cmd.Flags().GetInt("sample-rate")
		return runAnalyze(cmd.Context(), args[0], force, sampleRate)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		return runServe(host, port)
	},
}

func init() {
	analyzeCmd.Flags().BoolP("force", "f", false, "Force re-analysis even if JSON exists")
	analyzeCmd.Flags().IntP("sample-rate", "r", 0, "Decode sample rate (default from SAMPLE_RATE or 44100)")
	serveCmd.Flags().String("host", "", "Listen host (default from HOST)")
	serveCmd.Flags().IntP("port", "p", 0, "Listen port (default from PORT)")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAnalyze(ctx context.Context, path string, force bool, sampleRate int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.SetLevel(cfg.Level())

	analyzer, err := server.NewAnalyzer(cfg)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	params := analysis.DefaultConfig()
	params.SampleRate = cfg.SampleRate
	if sampleRate > 0 {
		params.SampleRate = sampleRate
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return analyzer.AnalyzeDir(ctx, path, params, force)
	}

	result := analyzer.AnalyzeFile(ctx, path, params)
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if result.Error != "" {
		return fmt.Errorf("analyze %s: %s", path, result.Error)
	}
	return nil
}

func runServe(host string, port int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Host = host
	}
	if port > 0 {
		cfg.Port = port
	}
	return server.Run(cfg)
}
