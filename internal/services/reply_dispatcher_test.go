package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"concierge-whatsapp/internal/adapters/rabbitmq"
	"concierge-whatsapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	env        *testEnv
	tenant     models.TenantWithCredentials
	conv       models.Conversation
	clientMsg  models.Message
	sender     *fakeSender
	events     *recordingPublisher
	dispatcher *ReplyDispatcher
}

func newDispatcherFixture(t *testing.T, whatsapp string) *dispatcherFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.tenant(t, "parc", whatsapp)
	conv, _, err := env.store.GetOrCreateConversation(ctx, "whatsapp:+33612345678", tenant.ID)
	require.NoError(t, err)
	msg, err := env.store.AppendMessage(ctx, models.NewMessage{ConversationID: conv.ID, Sender: models.SenderClient, Body: "Bonjour"})
	require.NoError(t, err)

	sender := &fakeSender{}
	events := &recordingPublisher{}
	gen := NewReplyGenerator(env.store, &stubChatModel{reply: "Bonjour, comment puis-je vous aider ?"}, GeneratorConfig{})
	d := NewReplyDispatcher(env.handles.Gorm, env.store, gen, sender, events, DispatcherConfig{Workers: 2, QueueSize: 8})
	return &dispatcherFixture{env: env, tenant: tenant, conv: conv, clientMsg: msg, sender: sender, events: events, dispatcher: d}
}

func (f *dispatcherFixture) request() ReplyRequest {
	return ReplyRequest{
		TenantID:        f.tenant.ID,
		ConversationID:  f.conv.ID,
		ClientMessageID: f.clientMsg.ID,
		ClientPhone:     f.conv.Phone,
		ClientMessage:   f.clientMsg.Body,
	}
}

// insert persists a job without queueing it.
func (f *dispatcherFixture) insert(t *testing.T, status models.ReplyJobStatus) *models.ReplyJob {
	t.Helper()
	req := f.request()
	job := &models.ReplyJob{
		TenantID:        req.TenantID,
		ConversationID:  req.ConversationID,
		ClientMessageID: req.ClientMessageID,
		ClientPhone:     req.ClientPhone,
		ClientMessage:   req.ClientMessage,
		Status:          status,
	}
	require.NoError(t, f.env.handles.Gorm.Create(job).Error)
	return job
}

func (f *dispatcherFixture) aiMessages(t *testing.T) []models.Message {
	t.Helper()
	msgs, err := f.env.store.ListMessages(context.Background(), f.conv.ID)
	require.NoError(t, err)
	var out []models.Message
	for _, m := range msgs {
		if m.IsAI {
			out = append(out, m)
		}
	}
	return out
}

func TestProcessSendsReply(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	ctx := context.Background()
	job := f.insert(t, models.ReplyJobPending)

	require.NoError(t, f.dispatcher.Process(ctx, job.ID))

	got, err := f.dispatcher.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobSent, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.ReplyMessageID)

	ai := f.aiMessages(t)
	require.Len(t, ai, 1)
	assert.Equal(t, *got.ReplyMessageID, ai[0].ID)
	assert.Equal(t, models.SenderConcierge, ai[0].Sender)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "whatsapp:+33612345678", sent[0].To)
	assert.Equal(t, "whatsapp:+14155238886", sent[0].From)
	assert.Equal(t, ai[0].Body, sent[0].Body)

	assert.Equal(t, []string{rabbitmq.EventReplyGenerated, rabbitmq.EventReplySent}, f.events.types())
}

func TestProcessSkipsTenantWithoutNumber(t *testing.T) {
	f := newDispatcherFixture(t, "")
	ctx := context.Background()
	job := f.insert(t, models.ReplyJobPending)

	require.NoError(t, f.dispatcher.Process(ctx, job.ID))

	got, err := f.dispatcher.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobSkipped, got.Status)
	assert.Len(t, f.aiMessages(t), 1)
	assert.Empty(t, f.sender.messages())
}

func TestProcessRecordsSendFailure(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	ctx := context.Background()
	f.sender.err = errors.New("provider down")
	job := f.insert(t, models.ReplyJobPending)

	require.NoError(t, f.dispatcher.Process(ctx, job.ID))

	got, err := f.dispatcher.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobFailed, got.Status)
	assert.Contains(t, got.LastError, "provider down")
	assert.Len(t, f.aiMessages(t), 1, "the reply stays in the log")
	assert.Contains(t, f.events.types(), rabbitmq.EventReplyFailed)

	// A retry only re-sends the stored reply.
	f.sender.err = nil
	_, err = f.dispatcher.Retry(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Process(ctx, job.ID))

	got, err = f.dispatcher.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobSent, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Empty(t, got.LastError)
	assert.Len(t, f.aiMessages(t), 1)
	assert.Len(t, f.sender.messages(), 1)
}

func TestProcessIgnoresFinishedJob(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	job := f.insert(t, models.ReplyJobSent)

	require.NoError(t, f.dispatcher.Process(context.Background(), job.ID))
	assert.Empty(t, f.aiMessages(t))
	assert.Empty(t, f.sender.messages())
}

func TestEnqueueRunsInBackground(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	ctx := context.Background()
	f.dispatcher.Start()

	job, err := f.dispatcher.Enqueue(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobPending, job.Status)

	require.Eventually(t, func() bool {
		got, err := f.dispatcher.Get(ctx, job.ID)
		return err == nil && got.Status == models.ReplyJobSent
	}, 5*time.Second, 20*time.Millisecond)

	f.dispatcher.Stop()
	st, err := f.dispatcher.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Zero(t, st.Unfinished)
}

func TestRecover(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	ctx := context.Background()
	interrupted := f.insert(t, models.ReplyJobProcessing)
	pending := f.insert(t, models.ReplyJobPending)

	n, err := f.dispatcher.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.dispatcher.Recover(ctx))
	assert.Equal(t, 1, f.dispatcher.QueueDepth())

	got, err := f.dispatcher.Get(ctx, interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyJobFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.LastError)

	f.dispatcher.Start()
	require.Eventually(t, func() bool {
		got, err := f.dispatcher.Get(ctx, pending.ID)
		return err == nil && got.Status == models.ReplyJobSent
	}, 5*time.Second, 20*time.Millisecond)
	f.dispatcher.Stop()
}

func TestListAndGet(t *testing.T) {
	f := newDispatcherFixture(t, "whatsapp:+14155238886")
	ctx := context.Background()
	f.insert(t, models.ReplyJobSent)
	failed := f.insert(t, models.ReplyJobFailed)

	all, err := f.dispatcher.List(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, failed.ID, all[0].ID)

	onlyFailed, err := f.dispatcher.List(ctx, JobFilter{Status: models.ReplyJobFailed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)

	other, err := f.dispatcher.List(ctx, JobFilter{TenantID: f.tenant.ID + 100})
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = f.dispatcher.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = f.dispatcher.Retry(ctx, 9999)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
