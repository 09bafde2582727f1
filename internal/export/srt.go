package export

import (
	"fmt"
	"strings"
)

// GenerateSRT renders cues as SubRip. Cues without text are skipped and the
// remaining ones are numbered from 1.
func GenerateSRT(cues []Cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		text := strings.TrimSpace(strings.ReplaceAll(c.Text, "\r\n", "\n"))
		if text == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", n, msToSRT(c.StartMs), msToSRT(c.EndMs), text)
	}
	return b.String()
}

func msToSRT(ms int) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
