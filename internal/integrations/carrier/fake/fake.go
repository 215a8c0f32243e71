package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/BoxTrack/internal/models"
)

type step struct {
	code, name, status string
}

// маршрут, по которому "едет" любой контейнер у заглушки
var route = []step{
	{"GTOT", "Gate out empty", models.TrackingStatusBooked},
	{"GTIN", "Gate in full", models.TrackingStatusBooked},
	{"LOAD", "Loaded on vessel", models.TrackingStatusInTransit},
	{"VDEP", "Vessel departure", models.TrackingStatusInTransit},
	{"VARR", "Vessel arrival", models.TrackingStatusInTransit},
	{"DISC", "Discharged", models.TrackingStatusDischarged},
	{"GTOF", "Gate out full", models.TrackingStatusDelivered},
}

var ports = []string{"Shanghai", "Singapore", "Rotterdam", "Antwerp", "Jebel Ali", "Nhava Sheva", "Busan", "Hamburg"}

// FakeClient is the fallback adapter for carriers without an integration.
// Output is deterministic per (carrier, container): the hash picks the route
// progress and the ports.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

func (f *FakeClient) Name() string { return "mock" }

func (f *FakeClient) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.now().UTC().Truncate(time.Hour)

	h := fnv.New32a()
	_, _ = h.Write([]byte(carrierCode))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(container))
	v := h.Sum32()

	progress := 1 + int(v%uint32(len(route)))
	origin := ports[v%uint32(len(ports))]
	dest := ports[(v/7+1)%uint32(len(ports))]
	if dest == origin {
		dest = ports[(v/7+2)%uint32(len(ports))]
	}

	start := now.Add(-time.Duration(progress) * 48 * time.Hour)
	ms := make([]models.Milestone, 0, progress)
	for i := 0; i < progress; i++ {
		at := start.Add(time.Duration(i) * 48 * time.Hour)
		loc := origin
		if i >= 4 {
			loc = dest
		}
		ms = append(ms, models.Milestone{
			Code:     route[i].code,
			Name:     route[i].name,
			Time:     &at,
			Location: loc,
		})
	}

	eta := start.Add(4 * 48 * time.Hour)
	return &models.TrackingPayload{
		Carrier:    carrierCode,
		Container:  container,
		Status:     route[progress-1].status,
		ETA:        &eta,
		Milestones: ms,
		Provider:   f.Name(),
		FetchedAt:  f.now().UTC(),
		Extra:      map[string]any{"simulated": true},
	}, nil
}
