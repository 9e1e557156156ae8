package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/flock/internal/printer"
	"github.com/dyluth/flock/pkg/roster"
)

var (
	publishFriendID string
	publishKind     string
	publishLat      float64
	publishLon      float64
	publishAccuracy float64
	publishAddress  string
	publishMoving   bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a presence event onto the stream",
	Long: `Publish one presence event for a friend onto the instance's event
stream. Useful for exercising watchers during development.

Kinds: location_updated, came_online, went_offline, started_moving,
stopped_moving. A location_updated event requires --lat and --lon.

Examples:
  # Move a friend to Trafalgar Square
  flock publish --friend 8f14e45f-ceea-467f-9b5c-91c4f6cda9f1 \
    --kind location_updated --lat 51.508 --lon -0.128 --accuracy 12

  # Mark a friend online
  flock publish --friend 8f14e45f-ceea-467f-9b5c-91c4f6cda9f1 --kind came_online`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishFriendID, "friend", "", "Friend UUID the event concerns (required)")
	publishCmd.Flags().StringVar(&publishKind, "kind", string(roster.EventLocationUpdated), "Event kind")
	publishCmd.Flags().Float64Var(&publishLat, "lat", 0, "Latitude for location_updated")
	publishCmd.Flags().Float64Var(&publishLon, "lon", 0, "Longitude for location_updated")
	publishCmd.Flags().Float64Var(&publishAccuracy, "accuracy", 10, "Horizontal accuracy in meters")
	publishCmd.Flags().StringVar(&publishAddress, "address", "", "Optional reverse-geocoded address")
	publishCmd.Flags().BoolVar(&publishMoving, "moving", false, "Whether the friend is currently moving")
	publishCmd.MarkFlagRequired("friend")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	ev := &roster.PresenceEvent{
		FriendID:    publishFriendID,
		Kind:        roster.EventKind(publishKind),
		TimestampMs: now,
	}

	if ev.Kind == roster.EventLocationUpdated {
		ev.Location = &roster.EventLocation{
			Lat:         publishLat,
			Lon:         publishLon,
			AccuracyM:   publishAccuracy,
			IsMoving:    publishMoving,
			Address:     publishAddress,
			TimestampMs: now,
		}
	}

	if err := ev.Validate(); err != nil {
		return printer.Error(
			"invalid presence event",
			fmt.Sprintf("Error: %v", err),
			[]string{"Check --kind, --friend, and the coordinates"},
		)
	}

	client, err := newRosterClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to directory: %w", err)
	}
	defer client.Close()

	if err := client.PublishPresenceEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	printer.Success("published %s for %s\n", ev.Kind, ev.FriendID)
	return nil
}
