/*
Copyright © 2021 Edmond Cotterell

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	devconfig "github.com/Daskott/walkwithme/dev/config"
	"github.com/Daskott/walkwithme/shared"
	"github.com/Daskott/walkwithme/utils"
	"github.com/Daskott/walkwithme/version"
	"github.com/fatih/color"
	"github.com/go-playground/validator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	config  *viper.Viper

	isDevEnv  bool
	isTestEnv bool

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
	cobra.OnInitialize(initConfig)

	rootCmd = createRootCmd()
	rootCmd.Version = fmt.Sprintf("v%s", version.Version)
}

func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "walkwithme",
		Short: `walkwithme keeps you company on a walk home.

It checks in with you on a schedule, and if you stop answering, shake your
phone, or call for help, it alerts your emergency contacts with your location.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.walkwithme.yaml)")
	cmd.PersistentFlags().BoolVarP(&isDevEnv, "dev", "", false, "run in development mode")
	cmd.PersistentFlags().BoolVarP(&isTestEnv, "test", "", false, "run in test mode, sms is only logged")

	return cmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config = viper.New()

	if cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(cfgFile)
	} else {
		configName, configDir, err := defaultCfgNameAndDir()
		cobra.CheckErr(err)

		// If config file is not found, create one using the default content
		configFilePath := filepath.Join(configDir, configName)
		if !utils.FileExist(configFilePath) {
			cobra.CheckErr(utils.CreateDirIfNotExist(configDir))
			err = os.WriteFile(configFilePath, []byte(defaultConfigValue()), 0600)
			cobra.CheckErr(err)
		}

		config.SetConfigFile(configFilePath)
		config.SetConfigType("yaml")
	}

	// Secrets can stay out of the config file and come from the environment.
	// FYI: The env var overrides whatever is in the config file
	config.BindEnv("twilio.authToken", "TWILIO_AUTH_TOKEN")
	config.BindEnv("google.applicationCredentials", "GOOGLE_APPLICATION_CREDENTIALS")

	config.SetEnvPrefix("walkwithme")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", config.ConfigFileUsed())
	} else {
		fmt.Fprintln(os.Stderr, warningLabel, err)
	}
}

// loadServerConfig decodes v into a ServerConfig and validates it.
func loadServerConfig(v *viper.Viper) (shared.ServerConfig, error) {
	serverConfig := shared.ServerConfig{}

	err := v.Unmarshal(&serverConfig)
	if err != nil {
		return serverConfig, formattedError("invalid config %s: %v", v.ConfigFileUsed(), err)
	}

	err = validator.New().Struct(serverConfig)
	if err != nil {
		return serverConfig, formattedError("invalid config %s:\n%v", v.ConfigFileUsed(), err)
	}

	return serverConfig, nil
}

func defaultCfgNameAndDir() (configName string, configDir string, err error) {
	configName = ".walkwithme.yaml"

	// Use home directory for production
	configDir, err = os.UserHomeDir()
	if err != nil {
		return "", "", err
	}

	if isDevEnv || isTestEnv {
		configName = ".walkwithme.dev.yaml"
		configDir, err = os.Getwd()
		if err != nil {
			return "", "", err
		}
		configDir = filepath.Join(configDir, "dev", "config")
	}

	return configName, configDir, err
}

// defaultConfigValue returns the default content for .walkwithme.yaml
func defaultConfigValue() string {
	if isDevEnv || isTestEnv {
		return devconfig.DEV_YAML
	}

	return `walk:
  # recurring: check in every checkInterval until you stop the walk
  # timed: walk for walkDuration, with a check after checkInterval
  mode: recurring
  checkInterval: 5m
  gracePeriod: 30s
  walkDuration: 5m
  locationTimeout: 10s

shake:
  threshold: 15
  debounce: 500ms

# Used when no position can be read.
# location:
#   fallback:
#     latitude: 40.7128
#     longitude: -74.0060

listener:
  port: 3000

cron:
  timeZone: "America/Toronto"

# Who you are, as your contacts will see it in an alert.
profile:
  name:
  email:
  phone:

# Up to 3 people to alert.
# e.g.
# contacts:
#   - name: Mom
#     phone: "+15550000001"
#     email: mom@example.com
#
contacts:

twilio:
  enabled: false
  accountSid:
  # or set TWILIO_AUTH_TOKEN
  authToken:
  messagingServiceSid:
  from:

google:
  # or set GOOGLE_APPLICATION_CREDENTIALS
  applicationCredentials:
  storage:
    bucket:
    prefix: walkwithme
    sqliteBackupSchedule: "0 3 * * *"
    enableSqliteBackupAndSync: false
`
}

func formattedError(format string, a ...interface{}) error {
	return fmt.Errorf(red(format), a...)
}
