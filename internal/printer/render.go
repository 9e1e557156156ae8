package printer

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dyluth/flock/internal/discovery"
	"github.com/dyluth/flock/internal/presence"
	"github.com/dyluth/flock/pkg/geo"
)

// FormatDiscoveredUsers renders discovery matches as an aligned table.
func FormatDiscoveredUsers(matches []discovery.DiscoveredUser) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tMATCHED VIA\tSTATUS\tLAST ACTIVE")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.DisplayName, m.MatchType, m.RequestStatus, formatActivity(m.IsOnline, m.LastActive))
	}
	w.Flush()

	return b.String()
}

// FormatNearbyFriends renders a sorted nearby list as an aligned table.
// Friends whose distance is unknown render a dash in the distance column.
func FormatNearbyFriends(friends []presence.NearbyFriend) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tDISTANCE\tSTATUS\tUPDATED")
	for _, f := range friends {
		distance := "-"
		if f.DistanceMeters < geo.MaxDistance {
			distance = geo.FormatDistance(f.DistanceMeters)
		}
		status := "offline"
		if f.IsOnline {
			status = "online"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			f.DisplayName, distance, status, f.LastUpdated.Format(time.Kitchen))
	}
	w.Flush()

	return b.String()
}

func formatActivity(online bool, lastActive time.Time) string {
	if online {
		return "online"
	}
	if lastActive.IsZero() {
		return "never active"
	}
	return "last seen " + lastActive.Format("2006-01-02 15:04")
}
