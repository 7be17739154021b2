package resource

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/backend/internal/imagecache"
	"vincit.fi/image-viewer/common/logger"
)

const (
	bytesInGB = 1024 * 1024 * 1024

	// Used when the amount of memory can't be read
	fallbackRamGB = 8.0
)

// Profile describes how much work the machine can take. It is computed
// once at startup.
type Profile struct {
	ramGB         float64
	cores         int
	threads       int
	decodeWorkers int
	cacheCapacity int
}

func NewProfile(ramGB float64, cores int, cacheSizeHint int) *Profile {
	if cores < 1 {
		cores = 1
	}
	profile := &Profile{
		ramGB:         ramGB,
		cores:         cores,
		threads:       threadsFor(ramGB, cores),
		decodeWorkers: decodeWorkersFor(ramGB, cores),
	}
	if cacheSizeHint > 0 {
		profile.cacheCapacity = cacheSizeHint
	} else {
		profile.cacheCapacity = imagecache.CapacityForMemory(ramGB, imagecache.DefaultBaseCapacity)
	}
	return profile
}

// DetectProfile reads the memory size from the probe and the core count
// from the system
func DetectProfile(memory api.MemoryProbe, cacheSizeHint int) *Profile {
	ramGB := fallbackRamGB
	if totalBytes, err := memory.TotalBytes(); err != nil {
		logger.Warn.Printf("Could not read total memory, assuming %.0f GB: %s", fallbackRamGB, err)
	} else {
		ramGB = float64(totalBytes) / bytesInGB
	}

	cores, err := cpu.Counts(true)
	if err != nil || cores < 1 {
		cores = runtime.NumCPU()
	}

	profile := NewProfile(ramGB, cores, cacheSizeHint)
	logger.Info.Printf("Resources: %.1f GB RAM, %d cores => %d threads, %d decode workers, cache of %d images",
		profile.ramGB, profile.cores, profile.threads, profile.decodeWorkers, profile.cacheCapacity)
	return profile
}

func threadsFor(ramGB float64, cores int) int {
	if ramGB >= 24 && cores >= 8 {
		return 4
	} else if ramGB >= 12 && cores >= 6 {
		return 3
	} else {
		return 2
	}
}

func decodeWorkersFor(ramGB float64, cores int) int {
	if ramGB < 15 {
		return 1
	}
	return max(1, min(2, cores/4))
}

func (s *Profile) GetRamGB() float64 {
	return s.ramGB
}

func (s *Profile) GetCores() int {
	return s.cores
}

func (s *Profile) GetThreads() int {
	return s.threads
}

func (s *Profile) GetDecodeWorkers() int {
	return s.decodeWorkers
}

func (s *Profile) GetCacheCapacity() int {
	return s.cacheCapacity
}
