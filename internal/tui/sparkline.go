package tui

import "strings"

var sparkBlocks = []rune(" ▁▂▃▄▅▆▇█")

// sparkline renders a block-character history of samples scaled to
// their own min/max, for the dashboard's cycle-activity strip. An empty
// history renders as the empty string and a single-valued one as a
// flat line.
func sparkline(samples []float64) string {
	if len(samples) == 0 {
		return ""
	}
	lo, hi := samples[0], samples[0]
	for _, v := range samples {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	var sb strings.Builder
	span := hi - lo
	for _, v := range samples {
		if span == 0 {
			sb.WriteRune(sparkBlocks[0])
			continue
		}
		idx := int((v - lo) / span * float64(len(sparkBlocks)-1))
		sb.WriteRune(sparkBlocks[idx])
	}
	return sb.String()
}
