package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	coordRe    = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)
	unitIDRe   = regexp.MustCompile(`(?i)\b(wtg|mast|turbine)[\s#-]*(\d{1,4})\b`)
	capacityRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:mw\b|megawatts?\b)`)
	placeRe    = regexp.MustCompile(`(?i)\b(?:near|around|in)\s+([a-z][a-z .'-]{1,40})`)
)

// ExtractCoordinates pulls a decimal "lat, lon" pair out of the text.
// Out-of-range values are rejected rather than clamped.
func ExtractCoordinates(text string) map[string]any {
	m := coordRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}
	return map[string]any{"lat": lat, "lon": lon}
}

// ExtractUnitID normalizes a turbine or met-mast identifier to its
// canonical PREFIX-### form: "wtg 42", "WTG#42", "turbine 42" and
// "wtg-042" all become "WTG-042".
func ExtractUnitID(text string) map[string]any {
	m := unitIDRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	prefix := strings.ToUpper(m[1])
	if prefix == "TURBINE" {
		prefix = "WTG"
	}
	return map[string]any{
		"unit_id": fmt.Sprintf("%s-%03d", prefix, n),
	}
}

// ExtractCapacityMW pulls a numeric capacity constraint ("120 MW").
func ExtractCapacityMW(text string) map[string]any {
	m := capacityRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	mw, err := strconv.ParseFloat(m[1], 64)
	if err != nil || mw <= 0 {
		return nil
	}
	return map[string]any{"capacity_mw": mw}
}

// ExtractPlace pulls a free-text place name following "near", "around"
// or "in".
func ExtractPlace(text string) map[string]any {
	m := placeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	place := strings.TrimRight(strings.TrimSpace(m[1]), ".?!,")
	if place == "" {
		return nil
	}
	return map[string]any{"place": place}
}

// MergeExtractors runs each extractor in order and merges their output.
// Earlier extractors win on key collisions.
func MergeExtractors(extractors ...Extractor) Extractor {
	return func(text string) map[string]any {
		var out map[string]any
		for _, ex := range extractors {
			p := ex(text)
			if p == nil {
				continue
			}
			if out == nil {
				out = make(map[string]any, len(p))
			}
			for k, v := range p {
				if _, ok := out[k]; !ok {
					out[k] = v
				}
			}
		}
		return out
	}
}
