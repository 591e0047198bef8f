package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/directory"
	"github.com/Sabari-Jazz/moose/internal/eventing"
	incidentevents "github.com/Sabari-Jazz/moose/internal/incidents/application/events"
	incidents "github.com/Sabari-Jazz/moose/internal/incidents/domain"
	"github.com/Sabari-Jazz/moose/internal/jobs"
	masterdata "github.com/Sabari-Jazz/moose/internal/masterdata/domain"
	"github.com/Sabari-Jazz/moose/internal/notify"
	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
	"github.com/Sabari-Jazz/moose/internal/status/application/events"
	status "github.com/Sabari-Jazz/moose/internal/status/domain"
)

// DefaultDeadline is the time a recipient has to react before escalation.
const DefaultDeadline = time.Hour

// Action is a recipient decision on a pending incident.
type Action string

const (
	ActionDismiss  Action = "dismiss"
	ActionEscalate Action = "escalate"
)

// ErrInvalidAction is returned for unknown actions.
var ErrInvalidAction = errors.New("incidents: invalid action")

// Recipients resolves who is notified for a site.
type Recipients interface {
	RecipientsForSite(ctx context.Context, siteID string) ([]directory.Recipient, error)
	Recipient(ctx context.Context, userID string) (*directory.Recipient, error)
}

// DeviceStatuses reads live device status.
type DeviceStatuses interface {
	Get(ctx context.Context, deviceID string) (*status.DeviceStatusRecord, error)
}

// Names resolves display names.
type Names interface {
	Device(ctx context.Context, id string) (*masterdata.Device, error)
	Site(ctx context.Context, id string) (*masterdata.Site, error)
}

// Timers arms and cancels deadline timers.
type Timers interface {
	Schedule(ctx context.Context, runAt time.Time, payload jobs.DeadlinePayload) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// PendingIncident is a pending incident with display names.
type PendingIncident struct {
	incidents.Incident
	DeviceName string
	SiteName   string
}

// Service opens, reconciles and resolves incidents.
type Service struct {
	repo       incidents.Repository
	recipients Recipients
	devices    DeviceStatuses
	timers     Timers
	channel    notify.Channel
	templates  *notify.Templates
	names      Names
	publisher  EventPublisher
	clock      Clock
	logger     *zap.Logger
	deadline   time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithDeadline sets the escalation delay.
func WithDeadline(deadline time.Duration) Option {
	return func(s *Service) {
		if deadline > 0 {
			s.deadline = deadline
		}
	}
}

// WithNames enables device and site names in messages and listings.
func WithNames(names Names) Option {
	return func(s *Service) {
		s.names = names
	}
}

// WithPublisher publishes incident events.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the incident service.
func NewService(repo incidents.Repository, recipients Recipients, devices DeviceStatuses, timers Timers, channel notify.Channel, templates *notify.Templates, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("incidents: nil repo")
	}
	if recipients == nil {
		return nil, errors.New("incidents: nil recipients")
	}
	if devices == nil {
		return nil, errors.New("incidents: nil device statuses")
	}
	if timers == nil {
		return nil, errors.New("incidents: nil timers")
	}
	if channel == nil {
		return nil, errors.New("incidents: nil channel")
	}
	if templates == nil {
		return nil, errors.New("incidents: nil templates")
	}
	s := &Service{
		repo:       repo,
		recipients: recipients,
		devices:    devices,
		timers:     timers,
		channel:    channel,
		templates:  templates,
		clock:      systemClock{},
		logger:     zap.NewNop(),
		deadline:   DefaultDeadline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deadline returns the configured escalation delay.
func (s *Service) Deadline() time.Duration {
	if s == nil {
		return 0
	}
	return s.deadline
}

// HandleDeviceStatusChanged opens one incident per eligible recipient when a
// device enters the fault state. Incident ids derive from the event id, so a
// redelivered event does not open duplicates.
func (s *Service) HandleDeviceStatusChanged(ctx context.Context, evt events.DeviceStatusChanged) error {
	if s == nil || !evt.IsFault() {
		return nil
	}
	if evt.DeviceID == "" || evt.SiteID == "" {
		s.logger.Warn("fault event without device or site", zap.String("device_id", evt.DeviceID), zap.String("site_id", evt.SiteID))
		return nil
	}
	recipients, err := s.recipients.RecipientsForSite(ctx, evt.SiteID)
	if err != nil {
		return fmt.Errorf("incidents: recipients for site %s: %w", evt.SiteID, err)
	}

	now := s.clock.Now().UTC()
	seed := eventSeed(ctx, evt, now)
	var errs []error
	for _, recipient := range recipients {
		if !recipient.CanEscalate() {
			continue
		}
		if err := s.open(ctx, seed, evt, recipient, now); err != nil {
			s.logger.Error("open incident failed",
				zap.String("device_id", evt.DeviceID),
				zap.String("recipient_id", recipient.UserID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) open(ctx context.Context, seed string, evt events.DeviceStatusChanged, recipient directory.Recipient, now time.Time) error {
	incident := incidents.Incident{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed+"|"+recipient.UserID)).String(),
		DeviceID:     evt.DeviceID,
		SiteID:       evt.SiteID,
		RecipientID:  recipient.UserID,
		Status:       incidents.StatusPending,
		DeviceStatus: evt.NewStatus,
		DeviceReason: evt.NewReason,
		CreatedAt:    now,
		Deadline:     now.Add(s.deadline),
	}
	existing, err := s.repo.Get(ctx, incident.ID)
	if err != nil {
		return err
	}
	switch {
	case existing == nil:
		if err := s.repo.Create(ctx, incident); err != nil {
			return err
		}
	case existing.Status != incidents.StatusPending || existing.TimerHandle != "":
		return nil
	default:
		incident = *existing
	}

	handle, err := s.timers.Schedule(ctx, incident.Deadline, jobs.DeadlinePayload{IncidentID: incident.ID, RecipientID: recipient.UserID})
	if err != nil {
		s.discard(ctx, incident.ID)
		return fmt.Errorf("schedule deadline: %w", err)
	}
	if err := s.repo.SetTimer(ctx, incident.ID, handle); err != nil {
		s.cleanup(ctx, handle)
		s.discard(ctx, incident.ID)
		return fmt.Errorf("store timer handle: %w", err)
	}
	metrics.IncIncidentEvent("opened")
	s.logger.Info("incident opened",
		zap.String("incident_id", incident.ID),
		zap.String("device_id", incident.DeviceID),
		zap.String("recipient_id", incident.RecipientID),
		zap.Time("deadline", incident.Deadline))
	s.publish(ctx, incidentevents.IncidentOpened{
		IncidentID:  incident.ID,
		DeviceID:    incident.DeviceID,
		SiteID:      incident.SiteID,
		RecipientID: incident.RecipientID,
		Deadline:    incident.Deadline,
		OccurredAt:  now,
	})
	return nil
}

// discard drops an incident whose timer could not be armed, so a redelivered
// event can open it again.
func (s *Service) discard(ctx context.Context, id string) {
	if _, err := s.repo.Discard(ctx, id); err != nil {
		s.logger.Error("discard unarmed incident failed", zap.String("incident_id", id), zap.Error(err))
	}
}

// HandleDeadline reconciles an incident when its timer fires. It never returns
// an error: failures are logged, and the timer is cleaned up in every case.
func (s *Service) HandleDeadline(ctx context.Context, payload jobs.DeadlinePayload) error {
	if s == nil {
		return nil
	}
	handle := payload.TaskID()
	defer func() { s.cleanup(ctx, handle) }()

	now := s.clock.Now().UTC()
	incident, err := s.repo.Get(ctx, payload.IncidentID)
	if err != nil {
		s.logger.Error("load incident failed", zap.String("incident_id", payload.IncidentID), zap.Error(err))
		return nil
	}
	if incident == nil || incident.RecipientID != payload.RecipientID {
		metrics.IncIncidentEvent("missing")
		s.logger.Info("deadline for unknown incident", zap.String("incident_id", payload.IncidentID))
		return nil
	}
	if incident.TimerHandle != "" {
		handle = incident.TimerHandle
	}

	if incident.Status != incidents.StatusPending {
		s.markProcessed(ctx, incident.ID, now)
		return nil
	}
	s.reconcile(ctx, incident, now)
	return nil
}

func (s *Service) reconcile(ctx context.Context, incident *incidents.Incident, now time.Time) {
	record, err := s.devices.Get(ctx, incident.DeviceID)
	if err != nil {
		s.logger.Warn("device status unreadable, escalating", zap.String("device_id", incident.DeviceID), zap.Error(err))
		record = nil
	}
	if record != nil && record.Status == status.StatusHealthy {
		s.resolve(ctx, incident, incidents.StatusDismissed, incidents.ReasonStatusReverted, now)
		return
	}

	recipient, err := s.recipients.Recipient(ctx, incident.RecipientID)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		s.logger.Error("load recipient failed", zap.String("recipient_id", incident.RecipientID), zap.Error(err))
		s.markProcessed(ctx, incident.ID, now)
		return
	}
	if recipient == nil || !recipient.CanEscalate() {
		s.resolve(ctx, incident, incidents.StatusDismissed, incidents.ReasonNoContact, now)
		return
	}

	if err := s.escalate(ctx, incident, *recipient, now); err != nil {
		metrics.IncIncidentEvent("escalation_failed")
		s.logger.Error("escalation send failed",
			zap.String("incident_id", incident.ID),
			zap.String("recipient_id", incident.RecipientID),
			zap.Error(err))
		s.markProcessed(ctx, incident.ID, now)
		return
	}
	s.resolve(ctx, incident, incidents.StatusEscalated, incidents.ReasonDeadline, now)
}

func (s *Service) escalate(ctx context.Context, incident *incidents.Incident, recipient directory.Recipient, now time.Time) error {
	deviceName, siteName := s.displayNames(ctx, incident.DeviceID, incident.SiteID)
	subject, body, err := s.templates.Escalation(notify.EscalationData{
		Device:      deviceName,
		Site:        siteName,
		DeviceID:    incident.DeviceID,
		SiteID:      incident.SiteID,
		RecipientID: incident.RecipientID,
		Reason:      incident.DeviceReason,
		CreatedAt:   incident.CreatedAt,
		EscalatedAt: now,
		Deadline:    incident.Deadline.Sub(incident.CreatedAt),
	})
	if err != nil {
		return err
	}
	return s.channel.Send(ctx, notify.Message{
		Tag:         notify.TagEscalation,
		SiteID:      incident.SiteID,
		DeviceID:    incident.DeviceID,
		RecipientID: incident.RecipientID,
		Contact:     recipient.EscalationContact,
		Subject:     subject,
		Body:        body,
		Data:        map[string]string{"incident_id": incident.ID},
	})
}

// Act applies a recipient's decision to one of their pending incidents.
func (s *Service) Act(ctx context.Context, recipientID, incidentID string, action Action) (*incidents.Incident, error) {
	if s == nil {
		return nil, errors.New("incidents: nil service")
	}
	if action != ActionDismiss && action != ActionEscalate {
		return nil, ErrInvalidAction
	}
	incident, err := s.repo.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident == nil || incident.RecipientID != recipientID {
		return nil, incidents.ErrNotFound
	}
	to := incidents.StatusDismissed
	reason := incidents.ReasonAcknowledged
	if action == ActionEscalate {
		to = incidents.StatusEscalated
		reason = incidents.ReasonManual
	}
	if !incidents.CanTransition(incident.Status, to) {
		return nil, incidents.ErrInvalidTransition
	}

	now := s.clock.Now().UTC()
	if action == ActionEscalate {
		recipient, err := s.recipients.Recipient(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		if !recipient.CanEscalate() {
			return nil, notify.ErrNoRecipient
		}
		if err := s.escalate(ctx, incident, *recipient, now); err != nil {
			return nil, err
		}
	}
	if !s.resolve(ctx, incident, to, reason, now) {
		return nil, incidents.ErrInvalidTransition
	}
	s.cleanup(ctx, incident.TimerHandle)
	return s.repo.Get(ctx, incident.ID)
}

// ListPending returns the recipient's pending incidents with display names.
func (s *Service) ListPending(ctx context.Context, recipientID string) ([]PendingIncident, error) {
	if s == nil {
		return nil, errors.New("incidents: nil service")
	}
	list, err := s.repo.ListPending(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingIncident, 0, len(list))
	for _, incident := range list {
		deviceName, siteName := s.displayNames(ctx, incident.DeviceID, incident.SiteID)
		out = append(out, PendingIncident{Incident: incident, DeviceName: deviceName, SiteName: siteName})
	}
	return out, nil
}

// Get loads one incident.
func (s *Service) Get(ctx context.Context, id string) (*incidents.Incident, error) {
	if s == nil {
		return nil, errors.New("incidents: nil service")
	}
	incident, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if incident == nil {
		return nil, incidents.ErrNotFound
	}
	return incident, nil
}

func (s *Service) resolve(ctx context.Context, incident *incidents.Incident, to incidents.Status, reason string, now time.Time) bool {
	ok, err := s.repo.Resolve(ctx, incident.ID, to, reason, now)
	if err != nil {
		s.logger.Error("resolve incident failed", zap.String("incident_id", incident.ID), zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Info("incident already resolved", zap.String("incident_id", incident.ID))
		return false
	}
	metrics.IncIncidentEvent(string(to))
	s.logger.Info("incident resolved",
		zap.String("incident_id", incident.ID),
		zap.String("status", string(to)),
		zap.String("reason", reason))
	s.publish(ctx, incidentevents.IncidentResolved{
		IncidentID:  incident.ID,
		DeviceID:    incident.DeviceID,
		SiteID:      incident.SiteID,
		RecipientID: incident.RecipientID,
		Status:      string(to),
		Resolution:  reason,
		OccurredAt:  now,
	})
	return true
}

func (s *Service) markProcessed(ctx context.Context, id string, now time.Time) {
	if err := s.repo.MarkProcessed(ctx, id, now); err != nil {
		s.logger.Error("mark incident processed failed", zap.String("incident_id", id), zap.Error(err))
	}
}

func (s *Service) cleanup(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := s.timers.Cancel(context.WithoutCancel(ctx), handle); err != nil {
		s.logger.Warn("cancel incident timer failed", zap.String("handle", handle), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish incident event failed", zap.Error(err))
	}
}

func (s *Service) displayNames(ctx context.Context, deviceID, siteID string) (string, string) {
	deviceName, siteName := deviceID, siteID
	if s.names == nil {
		return deviceName, siteName
	}
	if device, err := s.names.Device(ctx, deviceID); err == nil && device != nil {
		deviceName = device.DisplayName()
	}
	if site, err := s.names.Site(ctx, siteID); err == nil && site != nil && site.Name != "" {
		siteName = site.Name
	}
	return deviceName, siteName
}

func eventSeed(ctx context.Context, evt events.DeviceStatusChanged, now time.Time) string {
	if env, ok := eventing.EnvelopeFromContext(ctx); ok && env.EventID != "" {
		return env.EventID
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	return evt.DeviceID + "|" + occurred.UTC().Format(time.RFC3339Nano)
}
