package model

// WeatherResult is the reduced payload returned to callers of the proxy.
type WeatherResult struct {
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
}
