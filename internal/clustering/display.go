package clustering

import (
	"fmt"
	"strings"

	"github.com/justestif/go-mixpoint/internal/bpm"
	"github.com/justestif/go-mixpoint/internal/model"
)

const sampleTrackCount = 3

// FormatGroupSummary returns a human-readable summary of tempo groups.
// Shows each group's range, track count and first 3 sample tracks.
// Outliers are summarized by count only.
func FormatGroupSummary(groups []TempoGroup, outliers []model.Track) string {
	var sb strings.Builder

	totalTracks := len(outliers)
	for _, g := range groups {
		totalTracks += len(g.Tracks)
	}

	if len(groups) == 0 {
		sb.WriteString(fmt.Sprintf("No tempo groups found from %d tracks", totalTracks))
		if len(outliers) > 0 {
			sb.WriteString(fmt.Sprintf(" (%d ungrouped)", len(outliers)))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	groupWord := "group"
	if len(groups) > 1 {
		groupWord = "groups"
	}
	sb.WriteString(fmt.Sprintf("Found %d tempo %s from %d tracks", len(groups), groupWord, totalTracks))
	if len(outliers) > 0 {
		sb.WriteString(fmt.Sprintf(" (%d ungrouped)", len(outliers)))
	}
	sb.WriteString("\n")

	for _, g := range groups {
		sb.WriteString("\n")
		sb.WriteString(formatGroup(g))
	}
	return sb.String()
}

func formatGroup(g TempoGroup) string {
	var sb strings.Builder

	trackWord := "track"
	if len(g.Tracks) > 1 {
		trackWord = "tracks"
	}
	sb.WriteString(fmt.Sprintf("%s (%d %s)\n", g.Name, len(g.Tracks), trackWord))

	sampleCount := min(sampleTrackCount, len(g.Tracks))
	for i := 0; i < sampleCount; i++ {
		t := g.Tracks[i]
		sb.WriteString(fmt.Sprintf("  • %q at %s BPM\n", t.Name, bpm.Format(t.NativeBPM())))
	}

	if remaining := len(g.Tracks) - sampleTrackCount; remaining > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", remaining))
	}
	return sb.String()
}
