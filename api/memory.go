package api

// MemoryProbe reports the state of the system memory
type MemoryProbe interface {
	TotalBytes() (uint64, error)
	UsedPercent() (float64, error)
}
