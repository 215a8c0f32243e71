package msc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://www.msc.com"
	trackingPath   = "/api/feature/tools/TrackingInfo"
	// MSC отдаёт даты как dd/MM/yyyy
	dateLayout = "02/01/2006"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string { return "msc" }

type reqBody struct {
	TrackingNumber string `json:"trackingNumber"`
	TrackingMode   string `json:"trackingMode"`
}

type respEvent struct {
	Order       int      `json:"Order"`
	Date        string   `json:"Date"`
	Location    string   `json:"Location"`
	Description string   `json:"Description"`
	Detail      []string `json:"Detail"`
}

type respContainer struct {
	ContainerNumber string      `json:"ContainerNumber"`
	LatestMove      string      `json:"LatestMove"`
	PodEtaDate      string      `json:"PodEtaDate"`
	Events          []respEvent `json:"Events"`
}

type respBody struct {
	IsSuccess bool `json:"IsSuccess"`
	Data      struct {
		BillOfLadings []struct {
			BillOfLadingNumber  string `json:"BillOfLadingNumber"`
			GeneralTrackingInfo struct {
				ShippedFrom string `json:"ShippedFrom"`
				ShippedTo   string `json:"ShippedTo"`
			} `json:"GeneralTrackingInfo"`
			ContainersInfo []respContainer `json:"ContainersInfo"`
		} `json:"BillOfLadings"`
	} `json:"Data"`
}

func (c *Client) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = trackingPath

	body, err := json.Marshal(reqBody{TrackingNumber: container, TrackingMode: "0"})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("msc rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("msc http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if !rb.IsSuccess {
		return nil, fmt.Errorf("msc: tracking not successful for %s", container)
	}

	for _, bl := range rb.Data.BillOfLadings {
		for _, ci := range bl.ContainersInfo {
			if !strings.EqualFold(ci.ContainerNumber, container) {
				continue
			}
			p := toPayload(carrierCode, container, ci)
			p.Extra = map[string]any{
				"billOfLading": bl.BillOfLadingNumber,
				"shippedFrom":  bl.GeneralTrackingInfo.ShippedFrom,
				"shippedTo":    bl.GeneralTrackingInfo.ShippedTo,
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("msc: container %s not found in response", container)
}

func toPayload(carrierCode, container string, ci respContainer) *models.TrackingPayload {
	evs := append([]respEvent(nil), ci.Events...)
	// MSC присылает события от новых к старым
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Order < evs[j].Order })

	p := &models.TrackingPayload{
		Carrier:    carrierCode,
		Container:  container,
		Status:     models.TrackingStatusUnknown,
		Milestones: make([]models.Milestone, 0, len(evs)),
		FetchedAt:  time.Now().UTC(),
	}

	for _, e := range evs {
		m := models.Milestone{
			Code:     eventCode(e.Description),
			Name:     e.Description,
			Location: e.Location,
		}
		if t, err := time.Parse(dateLayout, e.Date); err == nil {
			m.Time = &t
		}
		if m.Code == "LOAD" && len(e.Detail) > 0 {
			p.Vessel = e.Detail[0]
		}
		p.Milestones = append(p.Milestones, m)
	}

	if len(p.Milestones) > 0 {
		p.Status = statusFor(p.Milestones[len(p.Milestones)-1].Code)
	}
	if t, err := time.Parse(dateLayout, ci.PodEtaDate); err == nil {
		p.ETA = &t
	}
	return p
}

var codeHints = []struct {
	hint, code string
}{
	{"empty to shipper", "GTOT"},
	{"export received", "GTIN"},
	{"gate in", "GTIN"},
	{"loaded", "LOAD"},
	{"transshipment", "TSHP"},
	{"discharged", "DISC"},
	{"import to consignee", "GTOF"},
	{"delivered", "GTOF"},
	{"empty received", "EMRT"},
	{"estimated time of arrival", "ETA"},
}

func eventCode(desc string) string {
	low := strings.ToLower(desc)
	for _, h := range codeHints {
		if strings.Contains(low, h.hint) {
			return h.code
		}
	}
	return "EVNT"
}

func statusFor(code string) string {
	switch code {
	case "GTOT", "GTIN":
		return models.TrackingStatusBooked
	case "LOAD", "TSHP", "ETA":
		return models.TrackingStatusInTransit
	case "DISC":
		return models.TrackingStatusDischarged
	case "GTOF", "EMRT":
		return models.TrackingStatusDelivered
	default:
		return models.TrackingStatusUnknown
	}
}
