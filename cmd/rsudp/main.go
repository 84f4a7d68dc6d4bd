package main

/*
rsudp reads the UDP data stream from a Raspberry Shake and runs the configured workers
over it: STA/LTA alerting, peak motion, RSAM, miniSEED archiving, and forwarding.

	rsudp -s rsudp_settings.json
	rsudp defaults rsudp_settings.json
*/

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GeoNet/rsudp/internal/settings"
	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitInvalid = 2
)

var (
	settingsPath string
	debug        bool
	exitCode     int
)

var rootCmd = &cobra.Command{
	Use:          "rsudp",
	Short:        "Raspberry Shake UDP client",
	Long:         `rsudp listens for the UDP data stream from a Raspberry Shake and fans it out to workers.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := load()
		if err != nil {
			log.Printf("ERROR: %s", err)
			exitCode = exitFatal
			return
		}

		if cmd.Flags().Changed("debug") {
			s.Settings.Debug = debug
		}

		exitCode = run(cmd.Context(), s)
	},
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults <file.json>",
	Short: "Write a settings file with every default value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := settings.WriteDefault(args[0]); err != nil {
			return err
		}
		log.Printf("wrote default settings to %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "settings file (JSON), defaults are used when empty")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every datagram, overrides settings.debug")
	rootCmd.AddCommand(defaultsCmd)
}

func load() (settings.Settings, error) {
	if settingsPath == "" {
		log.Println("no settings file, using defaults")
		return settings.Default()
	}

	return settings.Load(settingsPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitInvalid)
	}

	stop()
	os.Exit(exitCode)
}
