package clustering

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/justestif/go-mixpoint/internal/model"
)

func makeTrack(name string, tempo float64) model.Track {
	t := model.Track{ID: uuid.New(), Name: name, Duration: 300}
	if tempo > 0 {
		t.BPM = &tempo
	}
	return t
}

func TestDetectTempoGroups_Empty(t *testing.T) {
	groups, outliers, err := DetectTempoGroups(nil, DefaultGroupConfig())
	if err != nil {
		t.Fatal(err)
	}
	if groups != nil || outliers != nil {
		t.Errorf("expected nil results, got %v / %v", groups, outliers)
	}
}

func TestDetectTempoGroups_SeparatesTempos(t *testing.T) {
	tracks := []model.Track{
		makeTrack("slow 1", 84),
		makeTrack("fast 1", 172),
		makeTrack("slow 2", 86),
		makeTrack("fast 2", 174),
		makeTrack("slow 3", 85),
		makeTrack("fast 3", 170),
	}

	groups, outliers, err := DetectTempoGroups(tracks, GroupConfig{NumGroups: 2, MinGroupSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(outliers) != 0 {
		t.Errorf("expected 0 outliers, got %d", len(outliers))
	}

	slow, fast := groups[0], groups[1]
	if slow.MinBPM != 84 || slow.MaxBPM != 86 {
		t.Errorf("slow range = %v-%v, want 84-86", slow.MinBPM, slow.MaxBPM)
	}
	if fast.MinBPM != 170 || fast.MaxBPM != 174 {
		t.Errorf("fast range = %v-%v, want 170-174", fast.MinBPM, fast.MaxBPM)
	}
	if !strings.HasPrefix(slow.Name, "Downtempo") || !strings.HasPrefix(fast.Name, "High Energy") {
		t.Errorf("names = %q, %q", slow.Name, fast.Name)
	}
	if slow.Tracks[0].Name != "slow 1" {
		t.Errorf("group tracks not ordered by tempo: %v", slow.Tracks)
	}
}

func TestDetectTempoGroups_TracksWithoutTempoAreOutliers(t *testing.T) {
	tracks := []model.Track{
		makeTrack("a", 120),
		makeTrack("b", 121),
		makeTrack("untagged", 0),
	}

	groups, outliers, err := DetectTempoGroups(tracks, GroupConfig{NumGroups: 1, MinGroupSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].Tracks) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	if len(outliers) != 1 || outliers[0].Name != "untagged" {
		t.Errorf("outliers = %+v, want the untagged track", outliers)
	}
}

func TestDetectTempoGroups_FewerTracksThanGroups(t *testing.T) {
	tracks := []model.Track{makeTrack("a", 120), makeTrack("b", 0)}

	groups, outliers, err := DetectTempoGroups(tracks, GroupConfig{NumGroups: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
	if len(outliers) != 2 {
		t.Errorf("expected 2 outliers, got %d", len(outliers))
	}
}

func TestDetectTempoGroups_DoesNotMutateInput(t *testing.T) {
	tracks := []model.Track{makeTrack("b", 130), makeTrack("a", 120)}
	before := tracks[0].Name

	if _, _, err := DetectTempoGroups(tracks, GroupConfig{NumGroups: 1, MinGroupSize: 1}); err != nil {
		t.Fatal(err)
	}
	if tracks[0].Name != before {
		t.Errorf("input reordered: first track = %q, want %q", tracks[0].Name, before)
	}
}

func TestTempoBand(t *testing.T) {
	tests := []struct {
		center float64
		want   string
	}{
		{70, "Downtempo"},
		{90, "Mid-tempo"},
		{120, "Groove"},
		{125, "Driving"},
		{140, "Peak Time"},
		{174, "High Energy"},
	}
	for _, tt := range tests {
		if got := tempoBand(tt.center); got != tt.want {
			t.Errorf("tempoBand(%v) = %q, want %q", tt.center, got, tt.want)
		}
	}
}

func TestFormatGroupName(t *testing.T) {
	if got := formatGroupName("Groove", 120, 120.04); got != "Groove: 120.0 BPM" {
		t.Errorf("single tempo = %q", got)
	}
	if got := formatGroupName("Driving", 126, 128.5); got != "Driving: 126.0-128.5 BPM" {
		t.Errorf("range = %q", got)
	}
}

func TestFormatGroupSummary(t *testing.T) {
	tests := []struct {
		name         string
		groups       []TempoGroup
		outliers     []model.Track
		wantContains []string
	}{
		{
			name:         "nothing grouped",
			outliers:     []model.Track{makeTrack("x", 0)},
			wantContains: []string{"No tempo groups found from 1 tracks", "(1 ungrouped)"},
		},
		{
			name: "one group with more tracks than samples",
			groups: []TempoGroup{{
				Name: "Groove: 120.0-123.0 BPM",
				Tracks: []model.Track{
					makeTrack("a", 120), makeTrack("b", 121), makeTrack("c", 122), makeTrack("d", 123),
				},
			}},
			wantContains: []string{"Found 1 tempo group from 4 tracks", "Groove: 120.0-123.0 BPM (4 tracks)", `"a" at 120.0 BPM`, "... and 1 more"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatGroupSummary(tt.groups, tt.outliers)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("summary missing %q:\n%s", want, got)
				}
			}
		})
	}
}
