package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"concierge-whatsapp/internal/adapters/rabbitmq"
	"concierge-whatsapp/internal/metrics"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned for unknown reply job ids.
var ErrJobNotFound = errors.New("reply job not found")

// ErrJobBusy is returned when retrying a job a worker currently holds.
var ErrJobBusy = errors.New("reply job is being processed")

// ReplyDrafter produces the text of an automated reply.
type ReplyDrafter interface {
	Generate(ctx context.Context, p ReplyPrompt) string
}

// ReplySender delivers an automated reply.
type ReplySender interface {
	SendReply(ctx context.Context, to, body string, tenantID int64, from string) error
}

// DispatchStore is the domain storage the workers write to.
type DispatchStore interface {
	AppendMessage(ctx context.Context, m models.NewMessage) (models.Message, error)
	GetTenant(ctx context.Context, id int64) (models.TenantWithCredentials, error)
}

// ReplyRequest asks for an automated answer to one stored client message.
type ReplyRequest struct {
	TenantID        int64
	ConversationID  int64
	ClientMessageID int64
	ClientPhone     string
	ClientMessage   string
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// JobFilter narrows job listings. Zero values match everything.
type JobFilter struct {
	TenantID int64
	Status   models.ReplyJobStatus
	Limit    int
}

// DispatcherStatus summarizes the queue for monitoring.
type DispatcherStatus struct {
	Running       bool  `json:"running"`
	Workers       int   `json:"workers"`
	QueueDepth    int   `json:"queueDepth"`
	QueueCapacity int   `json:"queueCapacity"`
	Unfinished    int64 `json:"unfinished"`
	Failed        int64 `json:"failed"`
	JobTimeoutMs  int64 `json:"jobTimeoutMs"`
}

// ReplyDispatcher is the outbox of automated replies. Every request is persisted as a
// reply_jobs row before a worker picks it up, so pending work survives a restart.
type ReplyDispatcher struct {
	db        *gorm.DB
	store     DispatchStore
	generator ReplyDrafter
	sender    ReplySender
	events    EventPublisher
	cfg       DispatcherConfig

	queue chan uint
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
	active  map[uint]bool
}

func NewReplyDispatcher(db *gorm.DB, s DispatchStore, generator ReplyDrafter, sender ReplySender, events EventPublisher, cfg DispatcherConfig) *ReplyDispatcher {
	if db == nil || s == nil || generator == nil || sender == nil {
		log.Fatal().Msg("ReplyDispatcher requires a database, a store, a generator and a sender")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &ReplyDispatcher{
		db:        db,
		store:     s,
		generator: generator,
		sender:    sender,
		events:    publisherOrNop(events),
		cfg:       cfg,
		queue:     make(chan uint, cfg.QueueSize),
		quit:      make(chan struct{}),
		active:    make(map[uint]bool),
	}
}

// Start launches the workers.
func (d *ReplyDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	log.Info().Int("workers", d.cfg.Workers).Int("queueSize", d.cfg.QueueSize).Msg("Reply dispatcher started")
}

// Stop stops accepting work, lets the workers drain the queue and waits for them.
func (d *ReplyDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.quit)
	d.mu.Unlock()

	d.wg.Wait()
	log.Info().Msg("Reply dispatcher stopped")
}

// Enqueue persists a pending job and hands it to the workers.
func (d *ReplyDispatcher) Enqueue(ctx context.Context, req ReplyRequest) (*models.ReplyJob, error) {
	job := &models.ReplyJob{
		TenantID:        req.TenantID,
		ConversationID:  req.ConversationID,
		ClientMessageID: req.ClientMessageID,
		ClientPhone:     req.ClientPhone,
		ClientMessage:   req.ClientMessage,
		Status:          models.ReplyJobPending,
	}
	if err := d.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("persist reply job: %w", err)
	}
	log.Debug().Uint("jobID", job.ID).Int64("conversationID", job.ConversationID).Msg("Reply job queued")
	d.push(job.ID)
	return job, nil
}

// push hands a job id to the workers without blocking the caller for long. When the
// dispatcher is stopped the job stays pending in the database for the next Recover.
func (d *ReplyDispatcher) push(id uint) {
	select {
	case d.queue <- id:
		metrics.ReplyQueueDepth.Set(float64(len(d.queue)))
		return
	case <-d.quit:
		return
	default:
	}
	log.Warn().Uint("jobID", id).Int("capacity", cap(d.queue)).Msg("Reply queue full, waiting for a worker")
	go func() {
		select {
		case d.queue <- id:
			metrics.ReplyQueueDepth.Set(float64(len(d.queue)))
		case <-d.quit:
		}
	}()
}

// Recover re-queues jobs left unfinished by a previous process. Jobs caught mid-generation
// are marked failed since their reply may or may not have been stored.
func (d *ReplyDispatcher) Recover(ctx context.Context) error {
	res := d.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Where("status = ?", models.ReplyJobProcessing).
		Updates(map[string]interface{}{
			"status":     models.ReplyJobFailed,
			"last_error": "interrupted by restart",
		})
	if res.Error != nil {
		return fmt.Errorf("mark interrupted reply jobs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Warn().Int64("jobs", res.RowsAffected).Msg("Reply jobs interrupted by restart marked failed")
	}

	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Where("status IN ?", []models.ReplyJobStatus{models.ReplyJobPending, models.ReplyJobGenerated}).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("load pending reply jobs: %w", err)
	}
	for _, id := range ids {
		d.push(id)
	}
	log.Info().Int("jobs", len(ids)).Msg("Pending reply jobs recovered")
	return nil
}

// Retry re-runs a finished job. A job whose reply is already stored is only re-sent.
func (d *ReplyDispatcher) Retry(ctx context.Context, id uint) (*models.ReplyJob, error) {
	if d.isActive(id) {
		return nil, ErrJobBusy
	}
	job, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := models.ReplyJobPending
	if job.ReplyMessageID != nil {
		status = models.ReplyJobGenerated
	}
	if err := d.setStatus(ctx, id, map[string]interface{}{"status": status, "last_error": ""}); err != nil {
		return nil, err
	}
	job.Status = status
	job.LastError = ""

	log.Info().Uint("jobID", id).Str("status", string(status)).Msg("Manual retry triggered for reply job")
	d.push(id)
	return job, nil
}

// Get returns one job.
func (d *ReplyDispatcher) Get(ctx context.Context, id uint) (*models.ReplyJob, error) {
	var job models.ReplyJob
	err := d.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reply job: %w", err)
	}
	return &job, nil
}

// List returns jobs newest first.
func (d *ReplyDispatcher) List(ctx context.Context, f JobFilter) ([]models.ReplyJob, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := d.db.WithContext(ctx).Model(&models.ReplyJob{})
	if f.TenantID != 0 {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	jobs := []models.ReplyJob{}
	if err := q.Order("id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list reply jobs: %w", err)
	}
	return jobs, nil
}

// PendingCount returns the number of jobs that have not reached a final state.
func (d *ReplyDispatcher) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Where("status IN ?", []models.ReplyJobStatus{models.ReplyJobPending, models.ReplyJobProcessing, models.ReplyJobGenerated}).
		Count(&n).Error
	return n, err
}

// Status reports queue and worker state.
func (d *ReplyDispatcher) Status(ctx context.Context) (DispatcherStatus, error) {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	st := DispatcherStatus{
		Running:       running,
		Workers:       d.cfg.Workers,
		QueueDepth:    len(d.queue),
		QueueCapacity: cap(d.queue),
		JobTimeoutMs:  d.cfg.JobTimeout.Milliseconds(),
	}
	var err error
	if st.Unfinished, err = d.PendingCount(ctx); err != nil {
		return st, fmt.Errorf("count unfinished reply jobs: %w", err)
	}
	if err := d.db.WithContext(ctx).Model(&models.ReplyJob{}).Where("status = ?", models.ReplyJobFailed).Count(&st.Failed).Error; err != nil {
		return st, fmt.Errorf("count failed reply jobs: %w", err)
	}
	return st, nil
}

// QueueDepth is the number of job ids waiting for a worker.
func (d *ReplyDispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *ReplyDispatcher) worker(n int) {
	defer d.wg.Done()
	for {
		select {
		case id := <-d.queue:
			d.run(id)
		case <-d.quit:
			for {
				select {
				case id := <-d.queue:
					d.run(id)
				default:
					log.Debug().Int("worker", n).Msg("Reply worker exiting")
					return
				}
			}
		}
	}
}

func (d *ReplyDispatcher) run(id uint) {
	metrics.ReplyQueueDepth.Set(float64(len(d.queue)))
	if !d.claim(id) {
		return
	}
	defer d.release(id)

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()
	if err := d.Process(ctx, id); err != nil {
		log.Error().Err(err).Uint("jobID", id).Msg("Reply job failed")
	}
}

// Process runs one job to completion: generate and store the reply, then send it when
// the tenant has a sending number. Send failures are recorded on the job, never returned.
func (d *ReplyDispatcher) Process(ctx context.Context, id uint) error {
	job, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Done() {
		return nil
	}

	if job.ReplyMessageID == nil {
		if err := d.setStatus(ctx, id, map[string]interface{}{
			"status":        models.ReplyJobProcessing,
			"attempt_count": job.AttemptCount + 1,
		}); err != nil {
			return err
		}
		job.AttemptCount++

		reply := d.generator.Generate(ctx, ReplyPrompt{
			ConversationID: job.ConversationID,
			TenantID:       job.TenantID,
			MessageID:      job.ClientMessageID,
			Body:           job.ClientMessage,
		})
		msg, err := d.store.AppendMessage(ctx, models.NewMessage{
			ConversationID: job.ConversationID,
			Sender:         models.SenderConcierge,
			Body:           reply,
			IsAI:           true,
		})
		if err != nil {
			d.finish(ctx, job, models.ReplyJobFailed, err.Error())
			return fmt.Errorf("store generated reply: %w", err)
		}
		job.Reply = reply
		job.ReplyMessageID = &msg.ID
		if err := d.setStatus(ctx, id, map[string]interface{}{
			"status":           models.ReplyJobGenerated,
			"reply":            reply,
			"reply_message_id": msg.ID,
		}); err != nil {
			return err
		}
		d.publish(ctx, rabbitmq.EventReplyGenerated, job, nil)
	} else {
		if err := d.setStatus(ctx, id, map[string]interface{}{"attempt_count": job.AttemptCount + 1}); err != nil {
			return err
		}
		job.AttemptCount++
	}

	tenant, err := d.store.GetTenant(ctx, job.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.finish(ctx, job, models.ReplyJobFailed, "tenant no longer exists")
			return nil
		}
		d.finish(ctx, job, models.ReplyJobFailed, err.Error())
		return fmt.Errorf("load tenant for reply: %w", err)
	}
	if tenant.WhatsAppNumber == "" {
		log.Info().Uint("jobID", job.ID).Int64("tenantID", tenant.ID).Msg("Tenant has no sending number, reply stored without sending")
		d.finish(ctx, job, models.ReplyJobSkipped, "")
		return nil
	}

	if err := d.sender.SendReply(ctx, job.ClientPhone, job.Reply, tenant.ID, tenant.WhatsAppNumber); err != nil {
		log.Warn().Err(err).Uint("jobID", job.ID).Int64("conversationID", job.ConversationID).Msg("Automated reply stored but not sent")
		d.finish(ctx, job, models.ReplyJobFailed, err.Error())
		d.publish(ctx, rabbitmq.EventReplyFailed, job, err)
		return nil
	}
	d.finish(ctx, job, models.ReplyJobSent, "")
	d.publish(ctx, rabbitmq.EventReplySent, job, nil)
	return nil
}

func (d *ReplyDispatcher) finish(ctx context.Context, job *models.ReplyJob, status models.ReplyJobStatus, lastError string) {
	job.Status = status
	job.LastError = lastError
	if err := d.setStatus(ctx, job.ID, map[string]interface{}{"status": status, "last_error": lastError}); err != nil {
		log.Error().Err(err).Uint("jobID", job.ID).Msg("Failed to record reply job outcome")
	}
	metrics.ReplyJobs.WithLabelValues(string(status)).Inc()
	log.Info().
		Uint("jobID", job.ID).
		Int64("conversationID", job.ConversationID).
		Str("status", string(status)).
		Int("attempt", job.AttemptCount).
		Msg("Reply job finished")
}

func (d *ReplyDispatcher) setStatus(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := d.db.WithContext(ctx).Model(&models.ReplyJob{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update reply job %d: %w", id, err)
	}
	return nil
}

func (d *ReplyDispatcher) publish(ctx context.Context, eventType string, job *models.ReplyJob, cause error) {
	payload := map[string]interface{}{
		"jobId":       job.ID,
		"to":          job.ClientPhone,
		"reply":       job.Reply,
		"attempt":     job.AttemptCount,
		"clientMsgId": job.ClientMessageID,
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	if err := d.events.Publish(ctx, eventType, job.TenantID, job.ConversationID, payload); err != nil {
		log.Warn().Err(err).Str("eventType", eventType).Uint("jobID", job.ID).Msg("Failed to publish reply event")
	}
}

func (d *ReplyDispatcher) claim(id uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[id] {
		return false
	}
	d.active[id] = true
	return true
}

func (d *ReplyDispatcher) release(id uint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

func (d *ReplyDispatcher) isActive(id uint) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[id]
}
