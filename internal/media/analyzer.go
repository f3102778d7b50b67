package media

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
)

// TagAnalyzer reads tempo and length from ID3v2 tags instead of decoding
// the audio signal.
type TagAnalyzer struct{}

// Analyze parses the tag at the start of r. A file without a TBPM frame
// yields an Analysis with a nil BPM.
func (TagAnalyzer) Analyze(ctx context.Context, r io.Reader) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}

	tag, err := id3v2.ParseReader(r, id3v2.Options{Parse: true})
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: parsing tag: %v", ErrAnalysisUnavailable, err)
	}
	defer tag.Close()

	var a Analysis
	if bpm, ok := parsePositive(tag.GetTextFrame("TBPM").Text); ok {
		a.BPM = &bpm
	}
	if ms, ok := parsePositive(tag.GetTextFrame("TLEN").Text); ok {
		a.Duration = ms / 1000
	}
	return a, nil
}

func parsePositive(s string) (float64, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
