package cmd

import (
	"github.com/Daskott/walkwithme/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a walkwithme server",
	Long: `The walkwithme server runs walks for a client over HTTP: a browser or phone
posts its position and sensor readings, and listens on /walk/events for prompts,
tones and the emergency screen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverConfig, err := loadServerConfig(config)
		if err != nil {
			return err
		}

		server.Start(serverConfig, isDevEnv, isTestEnv)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
