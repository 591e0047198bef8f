package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
)

type memSites struct{ sites []masterdata.Site }

func (m *memSites) Get(_ context.Context, id string) (*masterdata.Site, error) {
	for i := range m.sites {
		if m.sites[i].ID == id {
			site := m.sites[i]
			return &site, nil
		}
	}
	return nil, nil
}

func (m *memSites) List(context.Context) ([]masterdata.Site, error) { return m.sites, nil }

func (m *memSites) Save(_ context.Context, site *masterdata.Site) error {
	m.sites = append(m.sites, *site)
	return nil
}

type memDevices struct{ devices []masterdata.Device }

func (m *memDevices) Get(_ context.Context, id string) (*masterdata.Device, error) {
	for i := range m.devices {
		if m.devices[i].ID == id {
			device := m.devices[i]
			return &device, nil
		}
	}
	return nil, nil
}

func (m *memDevices) ListBySite(_ context.Context, siteID string) ([]masterdata.Device, error) {
	var out []masterdata.Device
	for _, d := range m.devices {
		if d.SiteID == siteID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDevices) List(context.Context) ([]masterdata.Device, error) { return m.devices, nil }

func (m *memDevices) Save(_ context.Context, device *masterdata.Device) error {
	m.devices = append(m.devices, *device)
	return nil
}

func TestSnapshotGroupsDevicesBySite(t *testing.T) {
	sites := &memSites{sites: []masterdata.Site{{ID: "s1", Name: "One"}, {ID: "s2", Name: "Two"}}}
	devices := &memDevices{devices: []masterdata.Device{
		{ID: "d1", SiteID: "s1"},
		{ID: "d2", SiteID: "s1"},
		{ID: "d3", SiteID: "orphan"},
	}}
	svc, err := NewInventoryService(sites, devices)
	require.NoError(t, err)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
	assert.Len(t, snapshot[0].Devices, 2)
	assert.Empty(t, snapshot[1].Devices)
	assert.Equal(t, "orphan", snapshot[2].Site.ID)
}

func TestRegisterValidates(t *testing.T) {
	svc, err := NewInventoryService(&memSites{}, &memDevices{})
	require.NoError(t, err)

	assert.Error(t, svc.RegisterSite(context.Background(), &masterdata.Site{ID: "s1", Name: "x", Timezone: "Bad/Zone"}))
	assert.NoError(t, svc.RegisterSite(context.Background(), &masterdata.Site{ID: "s1", Name: "x", Timezone: "UTC"}))
	assert.Error(t, svc.RegisterDevice(context.Background(), &masterdata.Device{ID: "d1"}))
	assert.NoError(t, svc.RegisterDevice(context.Background(), &masterdata.Device{ID: "d1", SiteID: "s1"}))

	device, err := svc.Device(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "s1", device.SiteID)
}

func TestNewInventoryServiceRejectsNil(t *testing.T) {
	_, err := NewInventoryService(nil, &memDevices{})
	assert.Error(t, err)
}
