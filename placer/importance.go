// Package placer implements the importance-aware Placer (spec §4.3, L3):
// classify a file's importance, derive a target zone, pick a concrete
// cell, and delegate to the VAT's allocator. Grounded on
// original_source/systems/pixel_compiler/infinite_map_v2.py's
// AIPlacerV2.calculate_importance rule table.
package placer

import "strings"

// importanceRule pairs a path substring/extension predicate with a score.
// Rules are checked in order; the first match wins, mirroring the
// original's priority-ordered if/elif chain.
type importanceRule struct {
	match func(path string) bool
	score int
}

const defaultImportance = 100

var rules = []importanceRule{
	{contains("boot/", "vmlinuz", "kernel"), 255},
	{hasSuffix(".ko", ".sys"), 240},
	{contains("lib/libc", "lib/ld-"), 220},
	{hasSuffix(".so", ".dll", ".dylib"), 180},
	{contains("/etc/", "config", ".conf", ".cfg", ".yaml", ".yml", ".toml"), 160},
	{hasSuffix(".bin", ".exe"), 150},
	{contains("/bin/", "/sbin/", "/usr/bin/"), 140},
	{hasSuffix(".md", ".txt", "readme", "README"), 100},
	{contains("/doc/", "/docs/", "/man/"), 90},
	{contains("/tmp/", "/cache/", ".cache"), 40},
	{contains("/backup/", ".bak", ".old"), 30},
	{contains(".log"), 20},
}

func contains(subs ...string) func(string) bool {
	return func(path string) bool {
		lower := strings.ToLower(path)
		for _, s := range subs {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}

func hasSuffix(sufs ...string) func(string) bool {
	return func(path string) bool {
		lower := strings.ToLower(path)
		for _, s := range sufs {
			if strings.HasSuffix(lower, s) {
				return true
			}
		}
		return false
	}
}

// Classify assigns an importance score in [0, 255] to path, consulting
// size only as a minor tiebreaker (larger files within the same rule are
// nudged slightly more important, matching the original's bias toward
// treating large binaries as load-bearing).
func Classify(path string, size int64, overrides map[string]int) int {
	if overrides != nil {
		if v, ok := overrides[path]; ok {
			return clamp(v)
		}
	}
	score := defaultImportance
	for _, r := range rules {
		if r.match(path) {
			score = r.score
			break
		}
	}
	if size > 10*1024*1024 && score < 200 {
		score += 5
	}
	return clamp(score)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// TargetRadius maps an importance score to a target distance from center,
// per spec §3: target_radius ~= (1 - importance/255) * N/2.
func TargetRadius(importance int, gridSize int) float64 {
	return (1 - float64(importance)/255) * float64(gridSize) / 2
}
