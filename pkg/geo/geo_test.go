package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	london := Coordinates{Lat: 51.5074, Lon: -0.1278}
	paris := Coordinates{Lat: 48.8566, Lon: 2.3522}

	t.Run("identical points are zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Distance(london, london))
		assert.Equal(t, 0.0, Distance(Coordinates{}, Coordinates{}))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, Distance(london, paris), Distance(paris, london))
	})

	t.Run("london to paris is roughly 344km", func(t *testing.T) {
		d := Distance(london, paris)
		assert.InDelta(t, 344000, d, 2000)
	})

	t.Run("short distances stay in meters scale", func(t *testing.T) {
		a := Coordinates{Lat: 51.5074, Lon: -0.1278}
		b := Coordinates{Lat: 51.5083, Lon: -0.1278}
		// 0.0009 degrees of latitude is roughly 100m.
		d := Distance(a, b)
		assert.InDelta(t, 100, d, 2)
	})
}

func TestFormatDistance(t *testing.T) {
	cases := []struct {
		meters   float64
		expected string
	}{
		{0.0, "0 m"},
		{50.5, "51 m"},
		{999.4, "999 m"},
		{999.5, "1000 m"},
		{999.9, "1000 m"},
		{1000.0, "1.0 km"},
		{1050.0, "1.1 km"},
		{15750.0, "15.8 km"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, FormatDistance(tc.meters), "meters=%v", tc.meters)
	}
}

func TestCoordinatesValid(t *testing.T) {
	require.True(t, Coordinates{Lat: 51.5, Lon: -0.12}.Valid())
	require.True(t, Coordinates{Lat: -90, Lon: 180}.Valid())
	require.False(t, Coordinates{Lat: 90.1, Lon: 0}.Valid())
	require.False(t, Coordinates{Lat: 0, Lon: -180.5}.Valid())
}
