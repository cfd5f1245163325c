package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/broker/messages"
	"github.com/BearBump/CampaignBox/internal/content"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/BearBump/CampaignBox/internal/tokens"
	"github.com/pkg/errors"
)

type Repository interface {
	GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error)
	BeginDispatch(ctx context.Context, id uint64, from []string, listIDs []uint64) (*models.Campaign, error)
	CompleteDispatch(ctx context.Context, id uint64, sentAt time.Time) error
	ListRecipients(ctx context.Context, campaignID uint64) ([]*models.Recipient, error)
	ListDeliveries(ctx context.Context, campaignID uint64) ([]*models.DeliveryRecord, error)
	ListEvents(ctx context.Context, campaignID uint64) ([]*models.TrackingEvent, error)
	AppendDelivery(ctx context.Context, d models.DeliveryRecord) error
}

type Resolver interface {
	Resolve(ctx context.Context, listIDs, excludedIDs []uint64) ([]models.Contact, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, campaignID uint64, c models.Contact) (*models.Recipient, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Invalidator drops derived views that a finished run makes stale.
type Invalidator interface {
	Invalidate(ctx context.Context, campaignID uint64) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Engine struct {
	repo     Repository
	resolver Resolver
	issuer   TokenIssuer
	mail     mailer.Client
	rl       RateLimiter
	producer Producer
	inv      Invalidator

	baseURL string
	topic   string

	concurrency        int
	sendTimeout        time.Duration
	rateLimitPerMinute int64
	throttleStep       time.Duration

	now func() time.Time

	totalRuns      atomic.Int64
	totalAttempted atomic.Int64
	totalSucceeded atomic.Int64
	totalFailed    atomic.Int64
	inFlight       atomic.Int64
	lastErrorMu    sync.Mutex
	lastError      string
}

func New(repo Repository, resolver Resolver, issuer TokenIssuer, mail mailer.Client, baseURL string) *Engine {
	return &Engine{
		repo:               repo,
		resolver:           resolver,
		issuer:             issuer,
		mail:               mail,
		baseURL:            baseURL,
		concurrency:        8,
		sendTimeout:        15 * time.Second,
		rateLimitPerMinute: 600,
		throttleStep:       500 * time.Millisecond,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) WithSettings(concurrency int, sendTimeout time.Duration, rlPerMin int64) *Engine {
	if concurrency > 0 {
		e.concurrency = concurrency
	}
	if sendTimeout > 0 {
		e.sendTimeout = sendTimeout
	}
	if rlPerMin > 0 {
		e.rateLimitPerMinute = rlPerMin
	}
	return e
}

// WithRateLimiter throttles hand-offs to the transport with a per-minute
// window shared by every engine on the same limiter.
func (e *Engine) WithRateLimiter(rl RateLimiter) *Engine {
	e.rl = rl
	return e
}

// WithNotifier publishes a CampaignActivity message after every run.
func (e *Engine) WithNotifier(p Producer, topic string) *Engine {
	e.producer = p
	e.topic = topic
	return e
}

// WithInvalidator clears in-process derived views once a run completes.
func (e *Engine) WithInvalidator(inv Invalidator) *Engine {
	e.inv = inv
	return e
}

type Stats struct {
	TotalRuns      int64  `json:"totalRuns"`
	TotalAttempted int64  `json:"totalAttempted"`
	TotalSucceeded int64  `json:"totalSucceeded"`
	TotalFailed    int64  `json:"totalFailed"`
	InFlight       int64  `json:"inFlight"`
	LastError      string `json:"lastError,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		TotalRuns:      e.totalRuns.Load(),
		TotalAttempted: e.totalAttempted.Load(),
		TotalSucceeded: e.totalSucceeded.Load(),
		TotalFailed:    e.totalFailed.Load(),
		InFlight:       e.inFlight.Load(),
	}
	e.lastErrorMu.Lock()
	st.LastError = e.lastError
	e.lastErrorMu.Unlock()
	return st
}

// Send runs a normal dispatch. listIDs, when given, replace the campaign's
// stored audience selection.
func (e *Engine) Send(ctx context.Context, campaignID uint64, listIDs []uint64) (models.DispatchResult, error) {
	c, err := e.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.DispatchResult{}, err
	}
	if err := checkStartable(c, models.CampaignStatusDraft, models.CampaignStatusScheduled); err != nil {
		return models.DispatchResult{}, err
	}

	lists := c.ListIDs
	if len(listIDs) > 0 {
		lists = listIDs
	} else {
		listIDs = nil
	}
	if len(lists) == 0 {
		return models.DispatchResult{}, apperrors.Validation("no audience lists selected")
	}

	contacts, err := e.resolver.Resolve(ctx, lists, c.ExcludedIDs)
	if err != nil {
		return models.DispatchResult{}, errors.Wrap(err, "resolve recipients")
	}
	if len(contacts) == 0 {
		return models.DispatchResult{}, apperrors.Unprocessable("selected lists resolve to zero recipients")
	}

	c, err = e.repo.BeginDispatch(ctx, campaignID,
		[]string{models.CampaignStatusDraft, models.CampaignStatusScheduled}, listIDs)
	if err != nil {
		return models.DispatchResult{}, err
	}

	jobs := make([]job, 0, len(contacts))
	for _, ct := range contacts {
		jobs = append(jobs, job{contact: ct})
	}
	return e.run(ctx, c, jobs)
}

// ResendToNonOpeners sends the campaign again to every recipient that was
// delivered to at least once and never opened. Tracking ids are reused.
func (e *Engine) ResendToNonOpeners(ctx context.Context, campaignID uint64) (models.DispatchResult, error) {
	c, err := e.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.DispatchResult{}, err
	}
	if err := checkStartable(c, models.CampaignStatusSent); err != nil {
		return models.DispatchResult{}, err
	}

	recipients, err := e.repo.ListRecipients(ctx, campaignID)
	if err != nil {
		return models.DispatchResult{}, err
	}
	deliveries, err := e.repo.ListDeliveries(ctx, campaignID)
	if err != nil {
		return models.DispatchResult{}, err
	}
	events, err := e.repo.ListEvents(ctx, campaignID)
	if err != nil {
		return models.DispatchResult{}, err
	}
	targets := SelectNonOpeners(recipients, deliveries, events)
	if len(targets) == 0 {
		return models.DispatchResult{}, apperrors.Unprocessable("no delivered recipients without opens")
	}

	c, err = e.repo.BeginDispatch(ctx, campaignID, []string{models.CampaignStatusSent}, nil)
	if err != nil {
		return models.DispatchResult{}, err
	}

	jobs := make([]job, 0, len(targets))
	for _, r := range targets {
		jobs = append(jobs, job{
			contact:   models.Contact{ContactID: r.ContactID, Email: r.Email, Name: r.Name},
			recipient: r,
		})
	}
	return e.run(ctx, c, jobs)
}

// TestSend mails one rendered copy to an operator address. It uses a
// synthetic tracking id and writes no delivery record, so nothing it causes
// shows up in analytics.
func (e *Engine) TestSend(ctx context.Context, campaignID uint64, to string) error {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return apperrors.Validation("invalid test email: %s", to)
	}
	c, err := e.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	trackingID, err := tokens.NewTestID()
	if err != nil {
		return err
	}
	msg := e.buildMessage(c, models.Contact{Email: addr.Address, Name: addr.Name}, trackingID)
	msg.Subject = "[TEST] " + msg.Subject
	if err := e.sendWithTimeout(ctx, msg); err != nil {
		slog.Warn("test send failed", "campaign_id", campaignID, "error", err.Error())
		return apperrors.Unprocessable("test send failed: %v", err)
	}
	return nil
}

func checkStartable(c *models.Campaign, allowed ...string) error {
	for _, s := range allowed {
		if c.Status == s {
			return nil
		}
	}
	if c.Status == models.CampaignStatusSending {
		return errors.Wrap(apperrors.ErrConflict, "campaign is already sending")
	}
	return errors.Wrapf(apperrors.ErrConflict, "campaign cannot be dispatched in status %s", c.Status)
}

type job struct {
	contact models.Contact
	// recipient is set for resends; first sends issue it in the worker.
	recipient *models.Recipient
}

type outcome struct {
	delivered bool
}

// run fans the jobs out over a bounded pool and always completes the
// campaign, however many sends failed. The caller's cancellation does not
// reach the run: once started it finishes.
func (e *Engine) run(ctx context.Context, c *models.Campaign, jobs []job) (models.DispatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	e.totalRuns.Add(1)
	started := e.now()

	outcomes := make([]outcome, len(jobs))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, j := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		e.inFlight.Add(1)
		go func() {
			defer func() {
				e.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			outcomes[i] = e.deliver(ctx, c, j)
		}()
	}
	wg.Wait()

	res := models.DispatchResult{Attempted: len(jobs)}
	for _, o := range outcomes {
		if o.delivered {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	e.totalAttempted.Add(int64(res.Attempted))
	e.totalSucceeded.Add(int64(res.Succeeded))
	e.totalFailed.Add(int64(res.Failed))

	if err := e.repo.CompleteDispatch(ctx, c.ID, e.now()); err != nil {
		e.setLastError(err)
		return res, errors.Wrap(err, "complete dispatch")
	}
	slog.Info("dispatch finished",
		"campaign_id", c.ID,
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"took", e.now().Sub(started).String(),
	)
	if e.inv != nil {
		if err := e.inv.Invalidate(ctx, c.ID); err != nil {
			slog.Warn("invalidate analytics", "campaign_id", c.ID, "error", err.Error())
		}
	}
	e.notify(ctx, c.ID, res)
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, c *models.Campaign, j job) outcome {
	r := j.recipient
	if r == nil {
		var err error
		r, err = e.issuer.Issue(ctx, c.ID, j.contact)
		if err != nil {
			e.setLastError(err)
			slog.Error("issue tracking id", "campaign_id", c.ID, "contact_id", j.contact.ContactID, "error", err.Error())
			return outcome{}
		}
	}

	e.throttle(ctx)

	sendErr := e.sendWithTimeout(ctx, e.buildMessage(c, j.contact, r.TrackingID))
	rec := models.DeliveryRecord{
		CampaignID:  c.ID,
		TrackingID:  r.TrackingID,
		Outcome:     models.DeliveryOutcomeSent,
		AttemptedAt: e.now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		rec.Outcome = models.DeliveryOutcomeFailed
		rec.Error = &msg
		e.setLastError(sendErr)
		slog.Warn("send mail", "campaign_id", c.ID, "tracking_id", r.TrackingID, "error", msg)
	}
	if err := e.repo.AppendDelivery(ctx, rec); err != nil {
		e.setLastError(err)
		slog.Error("append delivery record", "campaign_id", c.ID, "tracking_id", r.TrackingID, "error", err.Error())
	}
	return outcome{delivered: sendErr == nil}
}

func (e *Engine) buildMessage(c *models.Campaign, ct models.Contact, trackingID string) mailer.Message {
	body := content.Personalize(c.HTMLContent, ct.Name, ct.Email)
	return mailer.Message{
		From:    c.Sender(),
		To:      ct.Email,
		Subject: content.PersonalizeText(c.Subject, ct.Name, ct.Email),
		HTML:    content.Render(body, c.ID, trackingID, e.baseURL),
		Headers: map[string]string{
			"X-Campaign-ID": strconv.FormatUint(c.ID, 10),
			"X-Tracking-ID": trackingID,
		},
	}
}

// sendWithTimeout bounds one transport call even when the transport ignores
// its context.
func (e *Engine) sendWithTimeout(ctx context.Context, msg mailer.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.mail.Send(sendCtx, msg) }()
	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return errors.Wrap(sendCtx.Err(), "mail send timed out")
	}
}

// throttle blocks until the current minute window has room. Limiter errors
// let the send through.
func (e *Engine) throttle(ctx context.Context) {
	if e.rl == nil || e.rateLimitPerMinute <= 0 {
		return
	}
	for {
		now := e.now()
		key := fmt.Sprintf("rl:mail:%s", now.Format("200601021504"))
		allowed, n, err := e.rl.Allow(ctx, key, e.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
			return
		}
		if allowed {
			return
		}
		slog.Debug("mail rate limit reached, waiting", "count", n)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.throttleStep):
		}
	}
}

func (e *Engine) notify(ctx context.Context, campaignID uint64, res models.DispatchResult) {
	if e.producer == nil {
		return
	}
	b, err := json.Marshal(messages.CampaignActivity{
		CampaignID: campaignID,
		Kind:       messages.ActivityDispatched,
		OccurredAt: e.now(),
		Attempted:  res.Attempted,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
	})
	if err != nil {
		return
	}
	key := []byte(strconv.FormatUint(campaignID, 10))
	if err := e.producer.Publish(ctx, e.topic, key, b); err != nil {
		slog.Warn("publish dispatch activity", "campaign_id", campaignID, "error", err.Error())
	}
}

func (e *Engine) setLastError(err error) {
	e.lastErrorMu.Lock()
	e.lastError = err.Error()
	e.lastErrorMu.Unlock()
}
