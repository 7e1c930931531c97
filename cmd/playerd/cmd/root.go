// Package cmd implements the CLI commands for playerd.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "playerd",
	Short: "Headless DASH segment delivery engine",
	Long: `playerd is a headless adaptive media-segment delivery engine. It loads a
DASH manifest, fetches initialization and media segments for one video and
one audio track, and feeds them into a playback sink while tracking the
playback position and the sink's backpressure.

Sessions are driven over the HTTP control surface:

  curl -X POST localhost:8080/api/sessions \
    -d '{"manifest_url": "http://example.com/stream/manifest.mpd"}'

Configuration comes from an optional config file and PLAYERD_-prefixed
environment variables, e.g. PLAYERD_LISTEN, PLAYERD_LOG_LEVEL.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the config file")
}
