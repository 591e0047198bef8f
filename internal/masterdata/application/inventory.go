package application

import (
	"context"
	"errors"

	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
)

// SiteInventory pairs a site with its devices.
type SiteInventory struct {
	Site    masterdata.Site
	Devices []masterdata.Device
}

// InventoryService reads and registers sites and devices.
type InventoryService struct {
	sites   masterdata.SiteRepository
	devices masterdata.DeviceRepository
}

// NewInventoryService constructs the service.
func NewInventoryService(sites masterdata.SiteRepository, devices masterdata.DeviceRepository) (*InventoryService, error) {
	if sites == nil {
		return nil, errors.New("inventory: nil site repository")
	}
	if devices == nil {
		return nil, errors.New("inventory: nil device repository")
	}
	return &InventoryService{sites: sites, devices: devices}, nil
}

// Snapshot returns every site with its devices. Devices whose site is unknown
// are reported under a placeholder site carrying only the id.
func (s *InventoryService) Snapshot(ctx context.Context) ([]SiteInventory, error) {
	if s == nil {
		return nil, errors.New("inventory: nil service")
	}
	sites, err := s.sites.List(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(sites))
	result := make([]SiteInventory, 0, len(sites))
	for _, site := range sites {
		index[site.ID] = len(result)
		result = append(result, SiteInventory{Site: site})
	}
	for _, device := range devices {
		i, ok := index[device.SiteID]
		if !ok {
			index[device.SiteID] = len(result)
			result = append(result, SiteInventory{Site: masterdata.Site{ID: device.SiteID, Name: device.SiteID}})
			i = len(result) - 1
		}
		result[i].Devices = append(result[i].Devices, device)
	}
	return result, nil
}

// Site loads one site.
func (s *InventoryService) Site(ctx context.Context, id string) (*masterdata.Site, error) {
	if s == nil {
		return nil, errors.New("inventory: nil service")
	}
	return s.sites.Get(ctx, id)
}

// Device loads one device.
func (s *InventoryService) Device(ctx context.Context, id string) (*masterdata.Device, error) {
	if s == nil {
		return nil, errors.New("inventory: nil service")
	}
	return s.devices.Get(ctx, id)
}

// RegisterSite validates and saves a site.
func (s *InventoryService) RegisterSite(ctx context.Context, site *masterdata.Site) error {
	if site == nil {
		return errors.New("inventory: nil site")
	}
	if err := site.Validate(); err != nil {
		return err
	}
	return s.sites.Save(ctx, site)
}

// RegisterDevice validates and saves a device.
func (s *InventoryService) RegisterDevice(ctx context.Context, device *masterdata.Device) error {
	if device == nil {
		return errors.New("inventory: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	return s.devices.Save(ctx, device)
}
