package apitype

import "strings"

type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// Priorities in the order the schedulers service them
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (s Priority) String() string {
	switch s {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

func (s Priority) IsValid() bool {
	return s >= PriorityHigh && s <= PriorityLow
}

func StringToPriority(value string) Priority {
	switch strings.ToLower(value) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}
