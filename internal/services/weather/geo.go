package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

type Place struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	Coordinates entities.Coordinates `json:"coordinates"`
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Place, error)
}

type Route struct {
	DistanceM float64                `json:"distance_m"`
	DurationS float64                `json:"duration_s"`
	Path      []entities.Coordinates `json:"path"`
}

type Router interface {
	Route(ctx context.Context, from, to entities.Coordinates) (Route, error)
}

// Nominatim geocodes free text through the OpenStreetMap search API.
type Nominatim struct {
	up      *Upstream
	baseURL string
}

func NewNominatim(baseURL string, up *Upstream) *Nominatim {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Nominatim{up: up, baseURL: strings.TrimRight(baseURL, "/")}
}

type nominatimHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Place{}, errors.New("geocode: empty query")
	}
	u := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", n.baseURL, url.QueryEscape(query))
	var hits []nominatimHit
	if err := n.up.GetJSON(ctx, u, &hits); err != nil {
		return Place{}, err
	}
	if len(hits) == 0 {
		return Place{}, fmt.Errorf("geocode %q: %w", query, ErrNotFound)
	}
	h := hits[0]
	lat, err1 := strconv.ParseFloat(h.Lat, 64)
	lon, err2 := strconv.ParseFloat(h.Lon, 64)
	if err := errors.Join(err1, err2); err != nil {
		return Place{}, fmt.Errorf("geocode %q: bad coordinates: %w", query, err)
	}
	name := h.Name
	if name == "" {
		name, _, _ = strings.Cut(h.DisplayName, ",")
	}
	return Place{Name: name, DisplayName: h.DisplayName, Coordinates: entities.Coordinates{Lat: lat, Lon: lon}}, nil
}

// OSRM computes driving routes with the OSRM route service.
type OSRM struct {
	up      *Upstream
	baseURL string
}

func NewOSRM(baseURL string, up *Upstream) *OSRM {
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org"
	}
	return &OSRM{up: up, baseURL: strings.TrimRight(baseURL, "/")}
}

type osrmResp struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

func (o *OSRM) Route(ctx context.Context, from, to entities.Coordinates) (Route, error) {
	u := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		o.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)
	var out osrmResp
	if err := o.up.GetJSON(ctx, u, &out); err != nil {
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("route (code %q): %w", out.Code, ErrNotFound)
	}
	r := out.Routes[0]
	path := make([]entities.Coordinates, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		path = append(path, entities.Coordinates{Lat: c[1], Lon: c[0]})
	}
	return Route{DistanceM: r.Distance, DurationS: r.Duration, Path: path}, nil
}

// ParseCoordinates reads "lat,lon".
func ParseCoordinates(s string) (entities.Coordinates, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return entities.Coordinates{}, fmt.Errorf("coordinates %q: want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return entities.Coordinates{}, fmt.Errorf("coordinates %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return entities.Coordinates{}, fmt.Errorf("coordinates %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return entities.Coordinates{}, fmt.Errorf("coordinates %q out of range", s)
	}
	return entities.Coordinates{Lat: lat, Lon: lon}, nil
}
