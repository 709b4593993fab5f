package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/k-avy/weatherCli/internal/query"
	"github.com/k-avy/weatherCli/internal/service"
)

const (
	cityParam = "city"

	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"

	msgNotFound         = "404 Not Found"
	msgCityNotSpecified = "City not specified"
	msgFetchFailed      = "Error fetching weather data"
)

type WeatherHandler struct {
	WeatherService service.WeatherServiceInterface
	// DefaultCity answers requests that carry no city parameter. Empty means
	// the parameter is required.
	DefaultCity string
	Logger      *zap.SugaredLogger
}

func NewWeatherHandler(svc service.WeatherServiceInterface, defaultCity string, logger *zap.SugaredLogger) *WeatherHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WeatherHandler{
		WeatherService: svc,
		DefaultCity:    defaultCity,
		Logger:         logger,
	}
}

// HandleWeather answers 400 before calling the service when no city is given,
// so any service error is an upstream failure and maps to 500.
func (h *WeatherHandler) HandleWeather(w http.ResponseWriter, r *http.Request) {
	city, ok := query.Parse(r.URL.RawQuery)[cityParam]
	if !ok {
		city = h.DefaultCity
	}
	if city == "" {
		h.writeResponse(w, r, http.StatusBadRequest, contentTypeText, []byte(msgCityNotSpecified))
		return
	}

	weather, err := h.WeatherService.GetWeather(r.Context(), city)
	if err != nil {
		h.writeResponse(w, r, http.StatusInternalServerError, contentTypeText, []byte(msgFetchFailed))
		return
	}

	body, err := json.Marshal(weather)
	if err != nil {
		h.Logger.Errorw("could not encode json", "city", city, "error", err)
		h.writeResponse(w, r, http.StatusInternalServerError, contentTypeText, []byte(msgFetchFailed))
		return
	}
	h.writeResponse(w, r, http.StatusOK, contentTypeJSON, body)
}

// NotFound answers every request outside the weather route, including other
// methods on the weather path.
func (h *WeatherHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, r, http.StatusNotFound, contentTypeText, []byte(msgNotFound))
}

// writeResponse never fails the caller: a broken connection only affects the
// request it belongs to.
func (h *WeatherHandler) writeResponse(w http.ResponseWriter, r *http.Request, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.Logger.Errorw("could not write response",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
}
