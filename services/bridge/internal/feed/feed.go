// Package feed reads the upstream rain-gauge station feed.
package feed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// CurrentResponse models the JSON payload returned by the current feed.
type CurrentResponse struct {
	Stations []Station `json:"estaciones"`
	Network  string    `json:"red"`
}

// Station is a single station entry. Value is nil when the feed omits it.
type Station struct {
	Barrio    string   `json:"barrio"`
	City      string   `json:"ciudad"`
	Code      int      `json:"codigo"`
	Comuna    string   `json:"comuna"`
	Latitude  float64  `json:"latitud"`
	Longitude float64  `json:"longitud"`
	Name      string   `json:"nombre"`
	Subbasin  string   `json:"subcuenca"`
	Value     *float64 `json:"valor"`
}

// FetchCurrentStations retrieves the current stations payload.
func FetchCurrentStations(ctx context.Context, client *http.Client, url string) (CurrentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CurrentResponse{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return CurrentResponse{}, fmt.Errorf("request current feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CurrentResponse{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload CurrentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return CurrentResponse{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
