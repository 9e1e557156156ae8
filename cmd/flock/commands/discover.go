package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/flock/internal/contacthash"
	"github.com/dyluth/flock/internal/discovery"
	"github.com/dyluth/flock/internal/printer"
)

var discoverContactsPath string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find which of your contacts already have accounts",
	Long: `Match a contacts file against the account directory without revealing
raw phone numbers or emails. Each contact is normalized and hashed with the
instance salt; only the hashes are queried.

The contacts file is a YAML list:

  - id: "c1"
    display_name: "Alice Smith"
    phone_numbers: ["+447700900123"]
    email_addresses: ["alice@example.com"]

Examples:
  # Match contacts.yml against the directory
  flock discover --contacts contacts.yml`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverContactsPath, "contacts", "contacts.yml", "Path to the contacts YAML file")
	rootCmd.AddCommand(discoverCmd)
}

// fileSource reads the contacts snapshot from a YAML file at run time, so a
// fresh Discover call always sees the file's current content.
type fileSource struct {
	path string
}

func (s fileSource) Contacts(ctx context.Context) ([]contacthash.Contact, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", discovery.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to read contacts: %w", err)
	}

	var contacts []contacthash.Contact
	if err := yaml.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("failed to parse contacts YAML: %w", err)
	}

	return contacts, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Discovery.Salt == "" {
		return printer.Error(
			"no discovery salt configured",
			"Contact hashes require a shared secret.",
			[]string{
				"Set discovery.salt in flock.yml",
				"Set the FLOCK_DISCOVERY_SALT environment variable",
			},
		)
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

	matcher, err := discovery.NewMatcher(hasher, client, client, cfg.UserID)
	if err != nil {
		return fmt.Errorf("failed to create matcher: %w", err)
	}

	results, err := matcher.Discover(ctx, fileSource{path: discoverContactsPath})
	if err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	for result := range results {
		switch r := result.(type) {
		case discovery.Progress:
			printer.Step("matching contacts (%d/%d)\n", r.Processed, r.Total)

		case discovery.Success:
			printer.Success("found %d account(s)\n\n", len(r.Matches))
			printer.Printf("%s", printer.FormatDiscoveredUsers(r.Matches))

		case discovery.NoMatches:
			printer.Info("No accounts found among %d contact(s).\n", r.TotalContactsSearched)

		case discovery.PermissionDenied:
			return printer.Error(
				"contacts not readable",
				fmt.Sprintf("Permission denied reading %s.", discoverContactsPath),
				[]string{"Check the file's permissions and try again"},
			)

		case discovery.Failure:
			return printer.Error(
				"discovery failed",
				fmt.Sprintf("Error: %v", r.Reason),
				[]string{"Check the Redis connection and retry"},
			)
		}
	}

	return nil
}
