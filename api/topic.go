package api

type Topic string

const (
	ShowError       Topic = "show-error"
	ShowAdvisory    Topic = "show-advisory"
	ImageLoaded     Topic = "image-loaded"
	StrategyChanged Topic = "strategy-changed"
	CacheCleared    Topic = "cache-cleared"
)
