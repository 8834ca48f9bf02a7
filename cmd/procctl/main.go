package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zavedsaifi/procmon/internal/cli"
)

var (
	serverURL  string
	apiKey     string
	outputJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "procctl",
	Short: "CLI for the process monitoring collector",
	Long: `procctl is a command-line interface for interacting with the process
monitoring collector API.

It provides commands to query monitored hosts, inspect process trees, and
trigger snapshot retention.`,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check collector service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cli.NewClient(serverURL, apiKey)
		data, err := client.Health()
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(data)
		}

		fmt.Printf("Status: %s\n", data["status"])
		fmt.Printf("Database: %s\n", data["database"])
		return nil
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage and query monitored hosts",
}

var listHostsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all monitored hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cli.NewClient(serverURL, apiKey)
		data, err := client.ListHosts()
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(data)
		}

		return cli.FormatHostsTable(data)
	},
}

var getHostCmd = &cobra.Command{
	Use:   "get [hostname]",
	Short: "Get details for a specific host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cli.NewClient(serverURL, apiKey)
		data, err := client.GetHost(args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(data)
		}

		return cli.FormatHostDetail(data)
	},
}

var processesCmd = &cobra.Command{
	Use:   "processes [hostname]",
	Short: "Show the latest process tree for a host, or a summary for all hosts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cli.NewClient(serverURL, apiKey)

		if len(args) == 1 {
			data, err := client.GetHostProcesses(args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.FormatJSON(data)
			}
			return cli.FormatSnapshotTree(data)
		}

		data, err := client.GetProcesses()
		if err != nil {
			return err
		}
		if outputJSON {
			return cli.FormatJSON(data)
		}
		return cli.FormatSnapshotsOverview(data)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete snapshots older than the retention age",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetInt("max-age-hours")

		client := cli.NewClient(serverURL, apiKey)
		data, err := client.Purge(maxAge)
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(data)
		}

		fmt.Printf("%s\n", data["message"])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Get collector-wide statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := cli.NewClient(serverURL, apiKey)
		data, err := client.GetStats()
		if err != nil {
			return err
		}

		if outputJSON {
			return cli.FormatJSON(data)
		}

		return cli.FormatStatsTable(data)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key for agents and the collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(uuid.NewString())
		return nil
	},
}

func init() {
	defaultServerURL := os.Getenv("PROCMON_URL")
	if defaultServerURL == "" {
		defaultServerURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL, "Collector server URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", os.Getenv("PROCMON_API_KEY"), "API key for mutating requests")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "Output in JSON format")

	purgeCmd.Flags().Int("max-age-hours", 0, "Delete snapshots older than this many hours (0 = server default)")

	hostsCmd.AddCommand(listHostsCmd)
	hostsCmd.AddCommand(getHostCmd)

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(processesCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(keygenCmd)
}
