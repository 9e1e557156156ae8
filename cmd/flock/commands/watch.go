package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/flock/internal/presence"
	"github.com/dyluth/flock/internal/printer"
	"github.com/dyluth/flock/pkg/geo"
)

var (
	watchLat      float64
	watchLon      float64
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor live friend presence",
	Long: `Subscribe to the presence event stream and print a nearby-friends
table as friends move, come online, or go offline.

When --lat/--lon are given, friends are sorted by distance from that point.
Without a viewer position all distances are unknown and friends are listed
in the order they first appeared.

Examples:
  # Watch from a fixed viewer position
  flock watch --lat 51.5074 --lon -0.1278

  # Watch without distances, refreshing every 10s
  flock watch --interval 10s`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Float64Var(&watchLat, "lat", 0, "Viewer latitude for distance sorting")
	watchCmd.Flags().Float64Var(&watchLon, "lon", 0, "Viewer longitude for distance sorting")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var viewer *geo.Coordinates
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		v := geo.Coordinates{Lat: watchLat, Lon: watchLon}
		if !v.Valid() {
			return printer.Error(
				"invalid viewer position",
				fmt.Sprintf("Coordinates (%v, %v) are out of range.", watchLat, watchLon),
				[]string{"Latitude must be in [-90, 90] and longitude in [-180, 180]"},
			)
		}
		viewer = &v
	}

	client, err := newRosterClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to directory: %w", err)
	}
	defer client.Close()

	cache, err := presence.NewCache(client, presence.Options{
		OnlineWindow:  cfg.OnlineWindow(),
		SweepInterval: cfg.SweepInterval(),
	})
	if err != nil {
		return fmt.Errorf("failed to create presence cache: %w", err)
	}

	if err := cache.Start(ctx); err != nil {
		return printer.Error(
			"failed to subscribe to presence events",
			fmt.Sprintf("Error: %v", err),
			[]string{"Check that Redis is reachable at " + cfg.Redis.Addr},
		)
	}
	defer cache.Stop()

	if viewer != nil {
		cache.SetSelfLocation(*viewer)
	}

	printer.Info("Watching presence on instance '%s' (Ctrl+C to stop)\n\n", cfg.Instance)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	lastState := cache.ConnectionState()
	for {
		select {
		case <-ctx.Done():
			printer.Println("\nStopped.")
			return nil

		case <-ticker.C:
			if state := cache.ConnectionState(); state != lastState {
				printer.Warning("connection state: %s → %s\n", lastState, state)
				lastState = state
			}
			friends := cache.NearbyFriends(viewer)
			if len(friends) == 0 {
				printer.Info("[%s] no friends with known locations yet\n", time.Now().Format(time.Kitchen))
				continue
			}
			printer.Printf("%s\n", printer.FormatNearbyFriends(friends))
		}
	}
}
