package main

import (
	"fmt"
	"os"

	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	flagConfig string
	settings   = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "meshpeer",
	Short: "Join a full-mesh WebRTC room from the command line",
	Long: `meshpeer connects to a mesh hub, joins a room and keeps one direct
WebRTC connection to every other participant. Local media can be fed in as
RTP over UDP; remote media is received and counted.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(settings.GetString("log_level"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.PersistentFlags().String("hub", "", "hub websocket URL")
	rootCmd.PersistentFlags().String("log-level", "", "log level")
	bind(settings, "hub_url", rootCmd.PersistentFlags().Lookup("hub"))
	bind(settings, "log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(joinCmd)
}

func bind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func Execute() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
