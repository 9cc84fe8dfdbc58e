package health

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// storagePressure samples free space under path and reports a diagnostic
// issue string when usage crosses thresholdPercent (teacher's
// SystemMetricsManager.checkStorageSpace pattern, supplemented into the
// Health & Alert Channel per spec.md's "(f) integrity and health sampling
// ... with alerting").
func storagePressure(path string, thresholdPercent float64) (issue string, ok bool) {
	usage, err := disk.Usage(path)
	if err != nil {
		usage, err = disk.Usage(".")
		if err != nil {
			return "", false
		}
	}
	if usage.UsedPercent >= thresholdPercent {
		return "disk_space_low", true
	}
	return "", false
}
