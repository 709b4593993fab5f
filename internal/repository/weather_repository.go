package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/k-avy/weatherCli/internal/config"
	"github.com/k-avy/weatherCli/internal/model"
)

const (
	// maxBodySize caps how much of a successful upstream body is decoded.
	maxBodySize = 1 << 20
	// maxDrainSize caps how much of an error body is read before closing.
	maxDrainSize = 64 << 10
)

// WeatherRepository defines the interface for weather data access
type WeatherRepository interface {
	GetWeather(ctx context.Context, city string) (*model.WeatherResult, error)
}

// weatherRepository reads current conditions from the OpenWeatherMap API.
type weatherRepository struct {
	cfg        config.OpenWeatherMapConfig
	httpClient *http.Client
}

// NewWeatherRepository creates a repository bound to one API credential. When
// no client is given, one with cfg.Timeout is used.
func NewWeatherRepository(cfg config.OpenWeatherMapConfig, httpClient ...*http.Client) WeatherRepository {
	client := &http.Client{Timeout: cfg.Timeout}
	if len(httpClient) > 0 && httpClient[0] != nil {
		client = httpClient[0]
	}
	return &weatherRepository{
		cfg:        cfg,
		httpClient: client,
	}
}

// GetWeather performs exactly one upstream call. Results are never cached.
func (r *weatherRepository) GetWeather(ctx context.Context, city string) (*model.WeatherResult, error) {
	reqURL, err := r.buildURL(city)
	if err != nil {
		return nil, &FetchError{Kind: KindRequest, City: city, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindRequest, City: city, Err: r.redact(err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, City: city, Err: r.redact(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
		statusErr := fmt.Errorf("upstream responded %s", resp.Status)
		if resp.StatusCode == http.StatusNotFound {
			statusErr = ErrLocationNotFound
		}
		return nil, &FetchError{Kind: KindStatus, City: city, StatusCode: resp.StatusCode, Err: statusErr}
	}

	var data model.OpenWeatherMapResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&data); err != nil {
		return nil, &FetchError{Kind: KindDecode, City: city, Err: err}
	}
	if data.Main == nil {
		return nil, &FetchError{Kind: KindDecode, City: city, Err: ErrMissingMain}
	}
	if data.Main.Temp == nil {
		return nil, &FetchError{Kind: KindDecode, City: city, Err: ErrMissingTemp}
	}
	if len(data.Weather) == 0 {
		return nil, &FetchError{Kind: KindEmptyResult, City: city, Err: ErrEmptyResult}
	}
	if data.Weather[0].Description == nil {
		return nil, &FetchError{Kind: KindDecode, City: city, Err: ErrMissingDescription}
	}

	return &model.WeatherResult{
		Temperature: *data.Main.Temp,
		Description: *data.Weather[0].Description,
	}, nil
}

func (r *weatherRepository) buildURL(city string) (string, error) {
	u, err := url.Parse(r.cfg.APIURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("q", city)
	q.Set("appid", r.cfg.APIKey)
	q.Set("units", r.cfg.Units)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the credential from the URL carried by net/http errors.
func (r *weatherRepository) redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "[redacted]", Err: ue.Err}
	}
	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}
