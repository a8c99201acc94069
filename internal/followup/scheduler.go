// Package followup schedules and delivers outbound followup messages to
// leads. Content comes from a text generator with a static fallback, sends go
// through the per-tenant circuit breakers, and every successful send leaves
// an outbound message row behind.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pilarlabs/studio-operator/internal/domain"
	"github.com/pilarlabs/studio-operator/internal/integrations"
	"github.com/pilarlabs/studio-operator/internal/pkg/logger"
	"github.com/pilarlabs/studio-operator/internal/pkg/resilience"
)

var (
	// ErrNoSender means no sender is configured for the followup's channel.
	ErrNoSender = errors.New("no sender configured for channel")

	// ErrLeadNotFound means the followup points at a lead that no longer exists.
	ErrLeadNotFound = errors.New("lead not found")
)

// Repository is the persistence surface the scheduler needs.
type Repository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Followup, error)
	ListDueForWorkspace(ctx context.Context, workspaceID string, now time.Time, limit int) ([]domain.Followup, error)
	CountSent(ctx context.Context, workspaceID, leadID string) (int, error)
	Create(ctx context.Context, f *domain.Followup) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	GetLead(ctx context.Context, workspaceID, leadID string) (*domain.Lead, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
}

// SMSSender sends a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, content string) (integrations.SendResult, error)
}

// WhatsAppSender sends a WhatsApp message to a phone number.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to, content string) (integrations.SendResult, error)
}

// EmailSender sends a plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, content string) (integrations.SendResult, error)
}

// Senders bundles the per-channel delivery collaborators. A nil field means
// the channel is not configured for this deployment.
type Senders struct {
	SMS      SMSSender
	WhatsApp WhatsAppSender
	Email    EmailSender
}

// Stats summarizes one processing pass.
type Stats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Scheduler processes due followups. One bad row never stops the batch.
type Scheduler struct {
	repo      Repository
	senders   Senders
	generator Generator
	breakers  *resilience.BreakerRegistry
	retry     resilience.RetryConfig
	now       func() time.Time
}

// NewScheduler creates a followup scheduler. generator may be nil, in which
// case every send uses the static fallback copy.
func NewScheduler(repo Repository, senders Senders, generator Generator, breakers *resilience.BreakerRegistry) *Scheduler {
	return &Scheduler{
		repo:      repo,
		senders:   senders,
		generator: generator,
		breakers:  breakers,
		retry:     resilience.DefaultRetryConfig,
		now:       time.Now,
	}
}

// ProcessDue processes up to limit due followups across all workspaces.
func (s *Scheduler) ProcessDue(ctx context.Context, limit int) (Stats, error) {
	due, err := s.repo.ListDue(ctx, s.now(), limit)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list due followups: %w", err)
	}
	return s.processBatch(ctx, due), nil
}

// ProcessWorkspace processes up to limit due followups for one workspace.
func (s *Scheduler) ProcessWorkspace(ctx context.Context, workspaceID string, limit int) (Stats, error) {
	due, err := s.repo.ListDueForWorkspace(ctx, workspaceID, s.now(), limit)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list due followups for %s: %w", workspaceID, err)
	}
	return s.processBatch(ctx, due), nil
}

func (s *Scheduler) processBatch(ctx context.Context, due []domain.Followup) Stats {
	var stats Stats
	for i := range due {
		f := &due[i]
		stats.Processed++
		switch outcome := s.processOne(ctx, f); outcome {
		case outcomeSent:
			stats.Sent++
		case outcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}
	if stats.Processed > 0 {
		log.Printf("[followup.Scheduler] batch done processed=%d sent=%d failed=%d skipped=%d",
			stats.Processed, stats.Sent, stats.Failed, stats.Skipped)
	}
	return stats
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSent
	outcomeSkipped
)

func (s *Scheduler) processOne(ctx context.Context, f *domain.Followup) outcome {
	lead, err := s.repo.GetLead(ctx, f.WorkspaceID, f.LeadID)
	if err != nil || lead == nil {
		s.markFailed(ctx, f, ErrLeadNotFound.Error())
		return outcomeFailed
	}

	// Converted and lost leads never receive another message. The pending row
	// is closed out instead of being left to come due forever.
	if lead.IsTerminal() {
		s.markFailed(ctx, f, fmt.Sprintf("lead is %s", lead.Status))
		return outcomeSkipped
	}

	sentCount, err := s.repo.CountSent(ctx, f.WorkspaceID, f.LeadID)
	if err != nil {
		s.markFailed(ctx, f, fmt.Sprintf("sent count unavailable: %v", err))
		return outcomeFailed
	}
	if sentCount >= domain.MaxFollowupsPerLead {
		s.markFailed(ctx, f, "followup cap reached")
		return outcomeSkipped
	}

	content := f.Content
	if content == "" {
		content = s.generateContent(ctx, lead, f.Channel, sentCount)
	}

	res, err := s.send(ctx, f, lead, content)
	if err != nil {
		log.Printf("[followup.Scheduler] send failed followup=%s lead=%s channel=%s: %v", f.ID, lead.ID, f.Channel, err)
		s.markFailed(ctx, f, err.Error())
		return outcomeFailed
	}

	sentAt := s.now()
	recipient := logger.RedactPhone(lead.Phone)
	if f.Channel == domain.ChannelEmail {
		recipient = logger.RedactEmail(lead.Email)
	}
	log.Printf("[followup.Scheduler] sent followup=%s lead=%s channel=%s to=%s", f.ID, lead.ID, f.Channel, recipient)

	if err := s.repo.MarkSent(ctx, f.ID, sentAt); err != nil {
		log.Printf("[followup.Scheduler] failed to mark followup %s sent: %v", f.ID, err)
	}
	s.recordMessage(ctx, f, lead, content, res.ID)
	s.scheduleNext(ctx, f, lead, sentCount+1, sentAt)
	return outcomeSent
}

// generateContent asks the generator for copy and falls back to the static
// template when generation fails. A lost AI call never blocks a send.
func (s *Scheduler) generateContent(ctx context.Context, lead *domain.Lead, channel domain.FollowupChannel, sentCount int) string {
	if s.generator == nil {
		return fallbackContent(lead, channel)
	}
	content, err := s.generator.Generate(ctx, lead, channel, sentCount)
	if err != nil {
		log.Printf("[followup.Scheduler] generation failed for lead %s, using fallback: %v", lead.ID, err)
		return fallbackContent(lead, channel)
	}
	return content
}

func (s *Scheduler) send(ctx context.Context, f *domain.Followup, lead *domain.Lead, content string) (integrations.SendResult, error) {
	var (
		collaborator string
		op           func(ctx context.Context) (integrations.SendResult, error)
	)

	switch f.Channel {
	case domain.ChannelWhatsApp:
		if s.senders.WhatsApp == nil {
			return integrations.SendResult{}, ErrNoSender
		}
		collaborator = integrations.NameMessaging
		op = func(ctx context.Context) (integrations.SendResult, error) {
			return s.senders.WhatsApp.SendMessage(ctx, lead.Phone, content)
		}
	case domain.ChannelSMS:
		if s.senders.SMS == nil {
			return integrations.SendResult{}, ErrNoSender
		}
		collaborator = integrations.NameTelephony
		op = func(ctx context.Context) (integrations.SendResult, error) {
			return s.senders.SMS.SendSMS(ctx, lead.Phone, content)
		}
	case domain.ChannelEmail:
		if s.senders.Email == nil {
			return integrations.SendResult{}, ErrNoSender
		}
		collaborator = integrations.NameEmail
		op = func(ctx context.Context) (integrations.SendResult, error) {
			return s.senders.Email.SendEmail(ctx, lead.Email, "Quick check-in from the studio", content)
		}
	default:
		return integrations.SendResult{}, fmt.Errorf("unknown followup channel %q", f.Channel)
	}

	var res integrations.SendResult
	call := func(ctx context.Context) error {
		var opErr error
		res, opErr = op(ctx)
		return opErr
	}

	if s.breakers != nil {
		err := s.breakers.ExecuteWithRetry(ctx, resilience.Key(collaborator, f.WorkspaceID), s.retry, call)
		return res, err
	}
	return res, resilience.Do(ctx, s.retry, call)
}

func (s *Scheduler) recordMessage(ctx context.Context, f *domain.Followup, lead *domain.Lead, content, providerID string) {
	msg := &domain.Message{
		ID:          uuid.NewString(),
		WorkspaceID: f.WorkspaceID,
		LeadID:      lead.ID,
		Channel:     f.Channel,
		Direction:   domain.MessageOutbound,
		Content:     content,
		ProviderID:  providerID,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		log.Printf("[followup.Scheduler] failed to record message for followup %s: %v", f.ID, err)
	}
}

// scheduleNext creates the next pending followup after a successful send,
// unless the lead hit the cap. Cadence comes from the lead classification.
func (s *Scheduler) scheduleNext(ctx context.Context, f *domain.Followup, lead *domain.Lead, sentCount int, sentAt time.Time) {
	if sentCount >= domain.MaxFollowupsPerLead {
		log.Printf("[followup.Scheduler] lead %s reached followup cap, not rescheduling", lead.ID)
		return
	}

	next := &domain.Followup{
		ID:          uuid.NewString(),
		WorkspaceID: f.WorkspaceID,
		LeadID:      lead.ID,
		Channel:     f.Channel,
		ScheduledAt: sentAt.Add(domain.NextFollowupDelay(lead.Classification)),
		Status:      domain.FollowupPending,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, next); err != nil {
		log.Printf("[followup.Scheduler] failed to schedule next followup for lead %s: %v", lead.ID, err)
	}
}

func (s *Scheduler) markFailed(ctx context.Context, f *domain.Followup, reason string) {
	if err := s.repo.MarkFailed(ctx, f.ID, reason); err != nil {
		log.Printf("[followup.Scheduler] failed to mark followup %s failed: %v", f.ID, err)
	}
}
