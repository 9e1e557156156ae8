package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/flock/internal/contacthash"
	"github.com/dyluth/flock/internal/printer"
	"github.com/dyluth/flock/pkg/roster"
)

var seedUsersPath string

// seedUser is one directory entry in the seed file.
type seedUser struct {
	UserID       string   `yaml:"user_id"`
	DisplayName  string   `yaml:"display_name"`
	AvatarURL    string   `yaml:"avatar_url,omitempty"`
	IsOnline     bool     `yaml:"is_online,omitempty"`
	LastActiveMs int64    `yaml:"last_active_ms,omitempty"`
	Phone        string   `yaml:"phone,omitempty"`
	Email        string   `yaml:"email,omitempty"`
	FriendsWith  []string `yaml:"friends_with,omitempty"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register directory accounts from a seed file",
	Long: `Populate the account directory from a YAML seed file. Each entry's
phone and email are hashed with the instance salt and registered as the
account's discovery keys; friends_with entries become mutual friendships.

The seed file is a YAML list:

  - user_id: "8f14e45f-ceea-467f-9b5c-91c4f6cda9f1"
    display_name: "Alice Smith"
    phone: "+447700900123"
    email: "alice@example.com"
    friends_with: ["9b2d43aa-1b2f-4c3d-8e4f-5a6b7c8d9e0f"]

Examples:
  # Seed a local development instance
  flock seed --users users.yml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedUsersPath, "users", "users.yml", "Path to the users YAML seed file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Discovery.Salt == "" {
		return printer.Error(
			"no discovery salt configured",
			"Registering discovery keys requires the shared secret.",
			[]string{
				"Set discovery.salt in flock.yml",
				"Set the FLOCK_DISCOVERY_SALT environment variable",
			},
		)
	}

	data, err := os.ReadFile(seedUsersPath)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var users []seedUser
	if err := yaml.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	hasher, err := contacthash.NewHasher([]byte(cfg.Discovery.Salt), cfg.Discovery.DefaultCountryCode)
	if err != nil {
		return fmt.Errorf("failed to create hasher: %w", err)
	}

	client, err := newRosterClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to directory: %w", err)
	}
	defer client.Close()

	for _, u := range users {
		rec := &roster.UserRecord{
			UserID:       u.UserID,
			DisplayName:  u.DisplayName,
			AvatarURL:    u.AvatarURL,
			IsOnline:     u.IsOnline,
			LastActiveMs: u.LastActiveMs,
		}

		hashes := seedHashes(hasher, u)
		if len(hashes) == 0 {
			printer.Warning("skipping %s: no normalizable phone or email\n", u.DisplayName)
			continue
		}

		if err := client.RegisterUser(ctx, rec, hashes); err != nil {
			return fmt.Errorf("failed to register %s: %w", u.DisplayName, err)
		}
		printer.Success("registered %s under %d discovery key(s)\n", u.DisplayName, len(hashes))
	}

	// Friendships after registration so both sides exist.
	for _, u := range users {
		for _, friendID := range u.FriendsWith {
			if err := client.SetFriends(ctx, u.UserID, friendID); err != nil {
				return fmt.Errorf("failed to connect %s and %s: %w", u.UserID, friendID, err)
			}
			printer.Step("connected %s and %s\n", u.DisplayName, friendID)
		}
	}

	return nil
}

// seedHashes derives the directory keys for one seed entry.
func seedHashes(hasher *contacthash.Hasher, u seedUser) map[roster.HashField][]byte {
	ch := hasher.Hash(contacthash.Contact{
		ID:             u.UserID,
		DisplayName:    u.DisplayName,
		PhoneNumbers:   nonEmpty(u.Phone),
		EmailAddresses: nonEmpty(u.Email),
	})

	hashes := make(map[roster.HashField][]byte)
	if ch.HashedPhone != nil {
		hashes[roster.HashFieldPhone] = ch.HashedPhone
	}
	if ch.HashedEmail != nil {
		hashes[roster.HashFieldEmail] = ch.HashedEmail
	}
	if ch.CompositeHash != nil {
		hashes[roster.HashFieldComposite] = ch.CompositeHash
	}
	return hashes
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
