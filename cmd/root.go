package cmd

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const VERSION = "1.0.0"

var (
	envFile  string
	isDevEnv bool

	yellow       = color.New(color.FgYellow).SprintFunc()
	red          = color.New(color.FgRed).SprintFunc()
	warningLabel = yellow("Warning:")
)

// rootCmd represents the base command when called without any subcommands
var rootCmd *cobra.Command

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd = createRootCmd()
	rootCmd.Version = fmt.Sprintf("v%s", VERSION)
	rootCmd.AddCommand(createServerCmd())
}

func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "villagevault",
		Short: `villagevault is the backend for a village community safety app.

Sarpanches broadcast alerts to every villager over in-app, SMS & missed call channels,
villagers raise SOS reports & everyone in a village shares one chat room.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables to load on start")
	cmd.PersistentFlags().BoolVarP(&isDevEnv, "dev", "", false, "run in development mode")

	return cmd
}

// initEnv loads 'envFile' into the process environment. Variables that are
// already set win over the file.
func initEnv() {
	err := godotenv.Load(envFile)
	if err == nil {
		fmt.Fprintln(os.Stderr, "Using env file:", envFile)
		return
	}

	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	fmt.Fprintln(os.Stderr, warningLabel, fmt.Sprintf("unable to load env file %s: %v", envFile, err))
}

func formattedError(format string, a ...interface{}) error {
	return fmt.Errorf(red(format), a...)
}
