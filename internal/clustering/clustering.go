// Package clustering groups stored tracks by tempo and length using
// k-means, to suggest which tracks mix well together.
package clustering

import (
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-mixpoint/internal/model"
)

// Feature scales bring tempo and duration onto comparable ranges.
const (
	tempoScale    = 200.0
	durationScale = 600.0
	// durationWeight keeps duration a tie-breaker next to tempo.
	durationWeight = 0.25
)

// GroupConfig holds tempo grouping parameters.
type GroupConfig struct {
	NumGroups    int // Number of groups to create (default: 3)
	MinGroupSize int // Minimum tracks per group; smaller groups become outliers
}

// DefaultGroupConfig returns the recommended default configuration.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		NumGroups:    3,
		MinGroupSize: 2,
	}
}

// TempoGroup is a cluster of tracks with similar tempo.
type TempoGroup struct {
	Name      string        `json:"name"` // e.g. "Driving: 124.0-128.0 BPM"
	Tracks    []model.Track `json:"tracks"`
	CenterBPM float64       `json:"centerBpm"`
	MinBPM    float64       `json:"minBpm"`
	MaxBPM    float64       `json:"maxBpm"`
}

type trackObservation struct {
	track  *model.Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// DetectTempoGroups partitions tracks by tempo. It returns the groups,
// slowest first, and the tracks that fit none: those without a tempo and
// those in groups below MinGroupSize. The input slice is not modified.
func DetectTempoGroups(tracks []model.Track, cfg GroupConfig) ([]TempoGroup, []model.Track, error) {
	if len(tracks) == 0 {
		return nil, nil, nil
	}
	if cfg.NumGroups <= 0 {
		cfg.NumGroups = DefaultGroupConfig().NumGroups
	}

	var withTempo []*model.Track
	var outliers []model.Track
	for i := range tracks {
		t := tracks[i]
		if t.HasTempo() {
			withTempo = append(withTempo, &t)
		} else {
			outliers = append(outliers, t)
		}
	}

	if len(withTempo) < cfg.NumGroups {
		for _, t := range withTempo {
			outliers = append(outliers, *t)
		}
		return nil, outliers, nil
	}

	var obs clusters.Observations
	for _, t := range withTempo {
		obs = append(obs, trackObservation{track: t, coords: extractFeatures(t)})
	}

	result, err := kmeans.New().Partition(obs, cfg.NumGroups)
	if err != nil {
		return nil, nil, fmt.Errorf("partitioning tracks: %w", err)
	}

	var groups []TempoGroup
	for _, cluster := range result {
		var members []model.Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				members = append(members, *to.track)
			}
		}
		if len(members) == 0 {
			continue
		}
		if len(members) < cfg.MinGroupSize {
			outliers = append(outliers, members...)
			continue
		}
		groups = append(groups, newGroup(members))
	}

	slices.SortFunc(groups, func(a, b TempoGroup) int {
		return compareFloat(a.CenterBPM, b.CenterBPM)
	})
	return groups, outliers, nil
}

func newGroup(members []model.Track) TempoGroup {
	slices.SortFunc(members, func(a, b model.Track) int {
		return compareFloat(a.NativeBPM(), b.NativeBPM())
	})

	var sum float64
	for _, t := range members {
		sum += t.NativeBPM()
	}
	g := TempoGroup{
		Tracks:    members,
		CenterBPM: sum / float64(len(members)),
		MinBPM:    members[0].NativeBPM(),
		MaxBPM:    members[len(members)-1].NativeBPM(),
	}
	g.Name = formatGroupName(tempoBand(g.CenterBPM), g.MinBPM, g.MaxBPM)
	return g
}

// extractFeatures returns the coordinate vector used for clustering.
func extractFeatures(t *model.Track) clusters.Coordinates {
	return clusters.Coordinates{
		t.NativeBPM() / tempoScale,
		durationWeight * t.Duration / durationScale,
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
