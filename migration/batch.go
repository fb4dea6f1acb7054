package migration

import (
	"sort"
	"time"
)

const microsPerPixel = 1.0 // µs_per_pixel baseline for the §4.7 cost formula

// estimateCost returns the estimated single-migration cost of spec §4.7:
// "distance_pixels · µs_per_pixel + size_bytes / throughput".
func estimateCost(distancePixels float64, sizeBytes int64, throughputBytesPerSec int64) time.Duration {
	us := distancePixels * microsPerPixel
	if throughputBytesPerSec > 0 {
		us += float64(sizeBytes) / float64(throughputBytesPerSec) * 1e6
	}
	return time.Duration(us * float64(time.Microsecond))
}

// SelectBatch sorts shouldMove candidates by descending benefit and
// greedily takes the highest-benefit ones while none of maxCount,
// maxBytes, maxTime is exceeded; skips any below minBenefit (spec §4.7
// "Batch selection").
func SelectBatch(candidates []Candidate, pathSize func(string) int64, throughputBytesPerSec int64, maxCount int, maxBytes int64, maxTime time.Duration, minBenefit float64, concurrency int) MigrationBatch {
	var eligible []Candidate
	for _, c := range candidates {
		if c.ShouldMove && c.Benefit >= minBenefit {
			eligible = append(eligible, c)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Benefit > eligible[j].Benefit })

	batch := MigrationBatch{ID: newBatchID()}
	var totalCost time.Duration
	if concurrency < 1 {
		concurrency = 1
	}
	for _, c := range eligible {
		if maxCount > 0 && len(batch.Candidates) >= maxCount {
			break
		}
		size := pathSize(c.Path)
		if maxBytes > 0 && batch.TotalBytes+size > maxBytes {
			continue
		}
		dist := c.CurrentCoord.DistanceTo(c.TargetCoord)
		cost := estimateCost(dist, size, throughputBytesPerSec)
		projected := totalCost + cost/time.Duration(min(len(batch.Candidates)+1, concurrency))
		if maxTime > 0 && projected > maxTime {
			continue
		}
		batch.Candidates = append(batch.Candidates, c)
		batch.TotalBytes += size
		totalCost = projected
	}
	return batch
}
