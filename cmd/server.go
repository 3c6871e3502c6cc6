package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	devConfig "github.com/villagevault/villagevault/dev/config"
	"github.com/villagevault/villagevault/server"
	"github.com/villagevault/villagevault/shared"
	"github.com/villagevault/villagevault/utils"
)

var serverConfigFile string

func createServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start a villagevault server",
		Long: `The villagevault server exposes the REST API under /api, the realtime gateway on /ws
& runs the workers that deliver alerts, scheduled or not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := serverConfigFile
			if configFile == "" && isDevEnv {
				configFile = devConfigFilePath()
			}

			if configFile == "" {
				return formattedError("a config file is required, set it with --config")
			}

			config, err := loadServerConfig(configFile, isDevEnv)
			if err != nil {
				return err
			}

			server.Start(config, isDevEnv)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverConfigFile, "config", "", "config file for server (default is ./dev/config/server.yml with --dev)")

	return cmd
}

// loadServerConfig reads 'configFile', applies env overrides & defaults then
// validates the result. In dev mode a missing config file is created from
// the dev template.
func loadServerConfig(configFile string, devMode bool) (*shared.ServerConfig, error) {
	if devMode && !utils.FileExist(configFile) {
		if err := writeDevConfig(configFile); err != nil {
			return nil, err
		}
	}

	config := viper.New()
	setServerDefaults(config, devMode)

	config.SetConfigFile(configFile)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv() // read in environment variables that match

	// Common platform variables, these override the config file
	config.BindEnv("villagevault.listener.port", "PORT")
	config.BindEnv("database.postgres.dsn", "DATABASE_URL")
	config.BindEnv("redis.addr", "REDIS_ADDR")
	config.BindEnv("google.applicationCredentials", "GOOGLE_APPLICATION_CREDENTIALS")

	if err := config.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "error reading server config file")
	}

	serverConfig := &shared.ServerConfig{}
	if err := config.Unmarshal(serverConfig); err != nil {
		return nil, errors.Wrap(err, "error decoding server config")
	}

	if err := validator.New().Struct(serverConfig); err != nil {
		return nil, errors.Wrapf(err, "invalid server config in %s", config.ConfigFileUsed())
	}

	return serverConfig, nil
}

func setServerDefaults(config *viper.Viper, devMode bool) {
	config.SetDefault("villagevault.privateKeyPem", "")
	config.SetDefault("villagevault.tokenTTL", 7*24*time.Hour)
	config.SetDefault("villagevault.frontendURL", "")
	config.SetDefault("villagevault.seedDemoData", devMode)
	config.SetDefault("villagevault.listener.port", 5000)
	config.SetDefault("villagevault.cron.timeZone", "Asia/Kolkata")
	config.SetDefault("villagevault.otp.length", 6)
	config.SetDefault("villagevault.otp.ttl", 5*time.Minute)
	config.SetDefault("villagevault.otp.maxAttempts", 5)
	config.SetDefault("villagevault.delivery.smsDelay", 1*time.Second)
	config.SetDefault("villagevault.delivery.missedCallDelay", 2*time.Second)
	config.SetDefault("villagevault.delivery.excludeSender", false)
	config.SetDefault("villagevault.workers.concurrency", 2)

	config.SetDefault("database.driver", "sqlite")
	config.SetDefault("database.sqlite.passPhrase", "")
	config.SetDefault("database.sqlite.dir", "")
	config.SetDefault("database.postgres.dsn", "")

	config.SetDefault("redis.addr", "")
	config.SetDefault("redis.password", "")
	config.SetDefault("redis.db", 0)

	config.SetDefault("twilio.accountSid", "")
	config.SetDefault("twilio.authToken", "")
	config.SetDefault("twilio.messagingServiceSid", "")
	config.SetDefault("twilio.fromNumber", "")

	config.SetDefault("google.applicationCredentials", "")
	config.SetDefault("google.storage.bucket", "")
	config.SetDefault("google.storage.prefix", "")
	config.SetDefault("google.storage.sqliteBackupSchedule", "")
}

func writeDevConfig(configFile string) error {
	if err := utils.CreateDirIfNotExist(filepath.Dir(configFile)); err != nil {
		return err
	}

	if err := os.WriteFile(configFile, []byte(devConfig.SERVER_YML), 0600); err != nil {
		return errors.Wrap(err, "unable to create dev config")
	}

	return nil
}

func devConfigFilePath() string {
	configDir, err := os.Getwd()
	cobra.CheckErr(err)

	return filepath.Join(configDir, "dev", "config", "server.yml")
}
