package model

// OpenWeatherMapResponse mirrors the current weather payload of the
// OpenWeatherMap API. The fields the proxy returns are pointers so that an
// absent or null value can be told apart from a reading of 0° or an empty
// description.
type OpenWeatherMapResponse struct {
	Name    string                    `json:"name"`
	Main    *OpenWeatherMapMain       `json:"main"`
	Weather []OpenWeatherMapCondition `json:"weather"`
}

type OpenWeatherMapMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike float64  `json:"feels_like"`
	TempMin   float64  `json:"temp_min"`
	TempMax   float64  `json:"temp_max"`
	Pressure  int      `json:"pressure"`
	Humidity  int      `json:"humidity"`
	SeaLevel  int      `json:"sea_level"`
	GrndLevel int      `json:"grnd_level"`
}

type OpenWeatherMapCondition struct {
	ID          int     `json:"id"`
	Main        string  `json:"main"`
	Description *string `json:"description"`
	Icon        string  `json:"icon"`
}
