package maersk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.maersk.com"
	// формат времени в ответах Maersk, без зоны
	timeLayout = "2006-01-02T15:04:05.000"
)

type Client struct {
	baseURL     string
	consumerKey string
	httpc       *http.Client
}

func New(baseURL, consumerKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		consumerKey: consumerKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string { return "maersk" }

type trackResp struct {
	Origin struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"origin"`
	Destination struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"destination"`
	Containers []struct {
		ContainerNum     string `json:"container_num"`
		ContainerSize    string `json:"container_size"`
		ContainerType    string `json:"container_type"`
		Status           string `json:"status"`
		EtaFinalDelivery string `json:"eta_final_delivery"`
		Locations        []struct {
			City     string `json:"city"`
			Country  string `json:"country"`
			Terminal string `json:"terminal"`
			Events   []struct {
				Activity     string `json:"activity"`
				VesselName   string `json:"vessel_name"`
				VoyageNum    string `json:"voyage_num"`
				ActualTime   string `json:"actual_time"`
				ExpectedTime string `json:"expected_time"`
				IsCancelled  bool   `json:"is_cancelled"`
			} `json:"events"`
		} `json:"locations"`
	} `json:"containers"`
}

func (c *Client) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/track/" + url.PathEscape(container)

	q := u.Query()
	q.Set("operator", "MAEU")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.consumerKey != "" {
		req.Header.Set("Consumer-Key", c.consumerKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("maersk rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("maersk http %d", resp.StatusCode)
	}

	var r trackResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	for _, ct := range r.Containers {
		if !strings.EqualFold(ct.ContainerNum, container) {
			continue
		}

		p := &models.TrackingPayload{
			Carrier:   carrierCode,
			Container: container,
			Status:    mapStatus(ct.Status),
			FetchedAt: time.Now().UTC(),
			Extra: map[string]any{
				"origin":      joinPlace(r.Origin.City, r.Origin.Country),
				"destination": joinPlace(r.Destination.City, r.Destination.Country),
				"size":        ct.ContainerSize,
				"type":        ct.ContainerType,
			},
		}
		if t, ok := parseTime(ct.EtaFinalDelivery); ok {
			p.ETA = &t
		}

		for _, loc := range ct.Locations {
			place := joinPlace(loc.City, loc.Country)
			for _, ev := range loc.Events {
				if ev.IsCancelled {
					continue
				}
				m := models.Milestone{
					Code:     activityCode(ev.Activity),
					Name:     ev.Activity,
					Location: place,
				}
				// фактическое время важнее планового
				if t, ok := parseTime(ev.ActualTime); ok {
					m.Time = &t
				} else if t, ok := parseTime(ev.ExpectedTime); ok {
					m.Time = &t
				}
				if ev.VesselName != "" && m.Time != nil && ev.ActualTime != "" {
					p.Vessel = ev.VesselName
				}
				p.Milestones = append(p.Milestones, m)
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("maersk: container %s not found in response", container)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func joinPlace(city, country string) string {
	switch {
	case city == "":
		return country
	case country == "":
		return city
	default:
		return city + ", " + country
	}
}

func mapStatus(s string) string {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return models.TrackingStatusDelivered
	case "IN-PROGRESS", "IN_PROGRESS":
		return models.TrackingStatusInTransit
	case "PLANNED":
		return models.TrackingStatusBooked
	default:
		return models.TrackingStatusUnknown
	}
}

func activityCode(a string) string {
	switch strings.ToUpper(a) {
	case "GATE-OUT-EMPTY":
		return "GTOT"
	case "GATE-IN":
		return "GTIN"
	case "LOAD":
		return "LOAD"
	case "CONTAINER DEPARTURE":
		return "VDEP"
	case "CONTAINER ARRIVAL":
		return "VARR"
	case "DISCHARG":
		return "DISC"
	case "GATE-OUT":
		return "GTOF"
	case "GATE-IN-EMPTY":
		return "EMRT"
	default:
		return "EVNT"
	}
}
