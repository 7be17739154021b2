package resource

import (
	"github.com/shirou/gopsutil/v4/mem"
	"vincit.fi/image-viewer/api"
)

// SystemMemoryProbe reads the virtual memory statistics of the host
type SystemMemoryProbe struct {
	api.MemoryProbe
}

func NewSystemMemoryProbe() *SystemMemoryProbe {
	return &SystemMemoryProbe{}
}

func (s *SystemMemoryProbe) TotalBytes() (uint64, error) {
	if stat, err := mem.VirtualMemory(); err != nil {
		return 0, err
	} else {
		return stat.Total, nil
	}
}

func (s *SystemMemoryProbe) UsedPercent() (float64, error) {
	if stat, err := mem.VirtualMemory(); err != nil {
		return 0, err
	} else {
		return stat.UsedPercent, nil
	}
}
