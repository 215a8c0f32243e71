package cma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://apis.cma-cgm.net/operation/trackandtrace/v1"

// Client talks to the CMA CGM DCSA track & trace endpoint.
type Client struct {
	baseURL string
	keyID   string
	httpc   *http.Client
}

func New(baseURL, keyID string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		keyID:   keyID,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string { return "cma" }

type dcsaEvent struct {
	EventType              string    `json:"eventType"`
	EventClassifierCode    string    `json:"eventClassifierCode"`
	EventDateTime          time.Time `json:"eventDateTime"`
	EquipmentEventTypeCode string    `json:"equipmentEventTypeCode"`
	TransportEventTypeCode string    `json:"transportEventTypeCode"`
	EquipmentReference     string    `json:"equipmentReference"`
	EventLocation          struct {
		LocationName   string `json:"locationName"`
		UNLocationCode string `json:"UNLocationCode"`
	} `json:"eventLocation"`
	TransportCall struct {
		Vessel struct {
			VesselName string `json:"vesselName"`
		} `json:"vessel"`
		Location struct {
			LocationName string `json:"locationName"`
		} `json:"location"`
	} `json:"transportCall"`
}

func (c *Client) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path += "/events"

	q := u.Query()
	q.Set("equipmentReference", container)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.keyID != "" {
		req.Header.Set("KeyId", c.keyID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("cma rate limit (429)")
	}
	// 206 тоже успех: DCSA отдаёт события страницами
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("cma http %d", resp.StatusCode)
	}

	var events []dcsaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("cma: no events for %s", container)
	}

	return toPayload(carrierCode, container, events), nil
}

func toPayload(carrierCode, container string, events []dcsaEvent) *models.TrackingPayload {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDateTime.Before(events[j].EventDateTime)
	})

	p := &models.TrackingPayload{
		Carrier:   carrierCode,
		Container: container,
		Status:    models.TrackingStatusUnknown,
		FetchedAt: time.Now().UTC(),
	}

	lastActual := ""
	for _, e := range events {
		code := eventCode(e)

		if e.EventClassifierCode != "ACT" {
			// плановые/оценочные события не попадают в историю, из них берём только ETA
			if code == "ARRI" && (p.ETA == nil || e.EventDateTime.After(*p.ETA)) {
				t := e.EventDateTime.UTC()
				p.ETA = &t
			}
			continue
		}

		t := e.EventDateTime.UTC()
		loc := e.EventLocation.LocationName
		if loc == "" {
			loc = e.TransportCall.Location.LocationName
		}
		p.Milestones = append(p.Milestones, models.Milestone{
			Code:     code,
			Name:     e.EventType + " " + code,
			Time:     &t,
			Location: loc,
		})
		if v := e.TransportCall.Vessel.VesselName; v != "" {
			p.Vessel = v
		}
		lastActual = code
	}

	p.Status = statusFor(lastActual)
	return p
}

func eventCode(e dcsaEvent) string {
	switch e.EventType {
	case "EQUIPMENT":
		return e.EquipmentEventTypeCode
	case "TRANSPORT":
		return e.TransportEventTypeCode
	default:
		return "EVNT"
	}
}

func statusFor(code string) string {
	switch code {
	case "GTIN", "PICK", "STUF":
		return models.TrackingStatusBooked
	case "LOAD", "DEPA", "ARRI":
		return models.TrackingStatusInTransit
	case "DISC":
		return models.TrackingStatusDischarged
	case "GTOT", "DROP", "STRP":
		return models.TrackingStatusDelivered
	default:
		return models.TrackingStatusUnknown
	}
}
