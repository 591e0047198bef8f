package application

import (
	"context"
	"sync"
	"time"

	masterdataapp "github.com/Sabari-Jazz/moose/internal/masterdata/application"
	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/solarweb"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTelemetry struct {
	mu          sync.Mutex
	power       map[string]float64
	flowErr     error
	faults      []status.FaultEvent
	messageCall int
	lastFrom    time.Time
}

func (f *fakeTelemetry) FlowData(_ context.Context, _ string, deviceID string) (solarweb.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flowErr != nil {
		return solarweb.Reading{}, f.flowErr
	}
	return solarweb.Reading{Online: true, HasData: true, Power: f.power[deviceID], Attempts: 1}, nil
}

func (f *fakeTelemetry) Messages(_ context.Context, _, _ string, from time.Time) ([]status.FaultEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCall++
	f.lastFrom = from
	return f.faults, nil
}

func (f *fakeTelemetry) setPower(deviceID string, power float64) {
	f.mu.Lock()
	f.power[deviceID] = power
	f.mu.Unlock()
}

type staticColours map[string]string

func (s staticColours) Colours(context.Context) (map[string]string, error) {
	return s, nil
}

// windowNight evaluates a fixed sun window.
type windowNight struct {
	window status.SunWindow
}

func (w windowNight) IsNight(_ context.Context, _ masterdata.Site, now time.Time) (bool, status.SunWindow) {
	night, err := status.IsNightWindow(now, w.window)
	if err != nil {
		return false, status.SunWindow{}
	}
	return night, w.window
}

type fixedNight bool

func (f fixedNight) IsNight(context.Context, masterdata.Site, time.Time) (bool, status.SunWindow) {
	return bool(f), status.SunWindow{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

type staticInventory []masterdataapp.SiteInventory

func (s staticInventory) Snapshot(context.Context) ([]masterdataapp.SiteInventory, error) {
	return s, nil
}
