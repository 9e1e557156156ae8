package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/flock/internal/config"
	"github.com/dyluth/flock/pkg/roster"
)

var (
	version string
	commit  string
	date    string
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flock",
	Short: "Flock - Privacy-preserving contact discovery and friend presence",
	Long: `Flock finds which of your contacts already have accounts without ever
uploading raw phone numbers or emails, and keeps a live view of where your
friends are.

Contacts are matched through salted hashes against a Redis-backed directory,
and friend locations arrive over a pub/sub presence stream merged into a
local cache.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "flock.yml", "Path to the flock configuration file")
}

// loadConfig reads the configured flock.yml.
func loadConfig() (*config.FlockConfig, error) {
	return config.Load(configPath)
}

// newRosterClient connects to the configured Redis-backed directory.
func newRosterClient(cfg *config.FlockConfig) (*roster.Client, error) {
	return roster.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Instance)
}
