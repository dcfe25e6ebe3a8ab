package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/robolab/trainerd/internal/session"
)

// progressPattern matches training step announcements like "Step 1000/20000".
var progressPattern = regexp.MustCompile(`Step\s+(\d+)/(\d+)`)

// exitCodePattern extracts the numeric exit code from the completion sentinel.
var exitCodePattern = regexp.MustCompile(session.Sentinel + ` (\d+)`)

// ParseProgress scans the log content for the last "Step a/b" occurrence and
// returns a/b as a percentage. Malformed or zero-denominator matches yield
// ok=false so the caller leaves the stored progress unchanged.
func ParseProgress(logContent string) (float64, bool) {
	matches := progressPattern.FindAllStringSubmatch(logContent, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1]
	current, err := strconv.Atoi(last[1])
	if err != nil {
		return 0, false
	}
	total, err := strconv.Atoi(last[2])
	if err != nil || total == 0 {
		return 0, false
	}
	return float64(current) / float64(total) * 100, true
}

// ParseSentinel reports whether the completion sentinel is present and, when
// it carries a parsable exit code, the code itself.
func ParseSentinel(logContent string) (exitCode int, hasCode bool, present bool) {
	if !strings.Contains(logContent, session.Sentinel) {
		return 0, false, false
	}
	m := exitCodePattern.FindStringSubmatch(logContent)
	if m == nil {
		return 0, false, true
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, true
	}
	return code, true, true
}

// splitLines mirrors the log file content into the stored snapshot, dropping
// a trailing empty line left by the final newline.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
