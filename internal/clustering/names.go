package clustering

import (
	"fmt"

	"github.com/justestif/go-mixpoint/internal/bpm"
)

// tempoBand names a group by its center tempo.
//
// Bands:
//   - below 90     = "Downtempo"
//   - 90 to 115    = "Mid-tempo"
//   - 115 to 125   = "Groove"
//   - 125 to 135   = "Driving"
//   - 135 to 150   = "Peak Time"
//   - 150 and up   = "High Energy"
func tempoBand(center float64) string {
	switch {
	case center < 90:
		return "Downtempo"
	case center < 115:
		return "Mid-tempo"
	case center < 125:
		return "Groove"
	case center < 135:
		return "Driving"
	case center < 150:
		return "Peak Time"
	default:
		return "High Energy"
	}
}

// formatGroupName combines a band name with the group's tempo range.
func formatGroupName(band string, lo, hi float64) string {
	if bpm.Format(lo) == bpm.Format(hi) {
		return fmt.Sprintf("%s: %s BPM", band, bpm.Format(lo))
	}
	return fmt.Sprintf("%s: %s-%s BPM", band, bpm.Format(lo), bpm.Format(hi))
}
