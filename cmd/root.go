package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/tenantscan/internal/logs"
	"github.com/praetorian-inc/tenantscan/internal/message"
)

var (
	cfgFile   string
	configErr error
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "tenantscan",
	Short:         "tenantscan inventories a Microsoft 365 tenant into a local database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		noColor, _ := cmd.Flags().GetBool("no-color")
		message.SetQuiet(quiet)
		if noColor {
			message.SetNoColor(true)
		}

		_, closer, err := logs.ConsoleLogger(logs.Options{
			Level: viper.GetString("log.level"),
			File:  viper.GetString("log.file"),
		})
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
}

// Execute runs the root command. It is called once by main.
func Execute() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		message.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tenantscan.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-file", "", "also write JSON logs to this file")
	flags.BoolP("quiet", "q", false, "only print errors")
	flags.Bool("no-color", false, "disable colored output")

	cobra.CheckErr(viper.BindPFlag("log.level", flags.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log.file", flags.Lookup("log-file")))
}

// bindEnv lets every key be set as TENANTSCAN_<SECTION>_<KEY>, for example
// TENANTSCAN_AZURE_CLIENT_SECRET.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TENANTSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// initConfig reads the config file and environment overrides.
func initConfig() {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tenantscan")
	}

	bindEnv(viper.GetViper())

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case errors.As(err, &notFound):
	default:
		configErr = fmt.Errorf("failed to read config: %w", err)
	}
}
