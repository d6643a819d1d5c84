package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/normalize"
	"github.com/nhle/inbox-clarity/internal/source"
	"github.com/nhle/inbox-clarity/internal/store"
	"github.com/nhle/inbox-clarity/tests/testutil"
)

var fixedNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func rawMessage(id, threadID, from, subject string) *model.RawMessage {
	return &model.RawMessage{
		ID:           id,
		ThreadID:     threadID,
		LabelIDs:     []string{model.LabelInbox, model.LabelUnread},
		InternalDate: fixedNow.Add(-time.Hour).UnixMilli(),
		Payload: &model.MessagePart{
			MimeType: "text/plain",
			Headers: []model.Header{
				{Name: "From", Value: from},
				{Name: "To", Value: testutil.UserEmail},
				{Name: "Subject", Value: subject},
			},
			Body: &model.PartBody{Data: base64.URLEncoding.EncodeToString([]byte("hello"))},
		},
	}
}

type fakeProvider struct {
	mu        gosync.Mutex
	ids       []string
	messages  map[string]*model.RawMessage
	listErr   error
	fetchErrs map[string][]error
	listCalls int
	fetched   map[string]int
}

func newFakeProvider(msgs ...*model.RawMessage) *fakeProvider {
	p := &fakeProvider{
		messages:  make(map[string]*model.RawMessage),
		fetchErrs: make(map[string][]error),
		fetched:   make(map[string]int),
	}
	for _, m := range msgs {
		p.ids = append(p.ids, m.ID)
		p.messages[m.ID] = m
	}
	return p
}

func (p *fakeProvider) Type() source.ProviderType { return "fake" }

func (p *fakeProvider) ListRecent(_ context.Context, _ source.ListOptions) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return p.ids, p.listErr
}

func (p *fakeProvider) FetchMessage(_ context.Context, id string) (*model.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched[id]++
	if errs := p.fetchErrs[id]; len(errs) > 0 {
		p.fetchErrs[id] = errs[1:]
		return nil, errs[0]
	}
	m, ok := p.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

type threadedProvider struct {
	*fakeProvider
	info *source.ThreadInfo
}

func (p *threadedProvider) ThreadInfo(_ context.Context, _ string) (*source.ThreadInfo, error) {
	return p.info, nil
}

type fakeClassifier struct {
	result    func(req model.ClassificationRequest) model.ClassificationResult
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32

	mu       gosync.Mutex
	requests []model.ClassificationRequest
}

func (c *fakeClassifier) Classify(_ context.Context, req model.ClassificationRequest) model.ClassificationResult {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxFlight.Load()
		if n <= m || c.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.result != nil {
		return c.result(req)
	}
	return model.ClassificationResult{
		Category:        model.CategoryImportant,
		ImportanceScore: 0.9,
		Summary:         "summary",
		Reason:          "reason",
		ModelUsed:       "test-model",
	}
}

func newTestRefresher(
	t *testing.T,
	provider source.MailProvider,
	classifier Classifier,
	st store.Store,
	batch model.BatchConfig,
) *Refresher {
	t.Helper()
	r := NewRefresher(provider, normalize.New(0), classifier, st, Options{
		UserEmail: testutil.UserEmail,
		Batch:     batch,
	}, zaptest.NewLogger(t))
	r.now = func() time.Time { return fixedNow }
	r.backoff = func() retry.Backoff { return retry.NewConstant(time.Millisecond) }
	return r
}

func TestRefreshClassifiesAndStores(t *testing.T) {
	malformed := rawMessage("m3", "t3", "carol@example.com", "Broken")
	malformed.Payload = nil
	provider := newFakeProvider(
		rawMessage("m1", "t1", "alice@example.com", "Budget"),
		rawMessage("m2", "t2", "bob@example.com", "Plans"),
		malformed,
	)
	st := testutil.NewTestStore(t)

	r := newTestRefresher(t, provider, &fakeClassifier{}, st, model.BatchConfig{})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Classified)
	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, map[model.Category]int{model.CategoryImportant: 2}, summary.Counts)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "message m3")
	assert.True(t, summary.Success)

	user := testutil.UserEmail
	insights, err := st.GetInsights(context.Background(), store.InsightFilter{UserEmail: &user})
	require.NoError(t, err)
	assert.Len(t, insights, 2)

	thread, err := st.GetThread(context.Background(), user, "t1")
	require.NoError(t, err)
	require.NotNil(t, thread)
	assert.Equal(t, "m1", thread.LastMessageID)
	assert.Equal(t, []string{"alice@example.com", user}, thread.Participants)
	assert.True(t, thread.IsUnread)
}

func TestRefreshUsesThreadContext(t *testing.T) {
	provider := &threadedProvider{
		fakeProvider: newFakeProvider(rawMessage("m1", "t1", "alice@example.com", "Re: Budget")),
		info: &source.ThreadInfo{
			MessageCount:  4,
			LastSender:    "USER@example.com",
			LastMessageAt: fixedNow.Add(-74 * time.Hour),
		},
	}
	classifier := &fakeClassifier{}

	r := newTestRefresher(t, provider, classifier, nil, model.BatchConfig{})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Classified)
	assert.Zero(t, summary.Stored)

	require.Len(t, classifier.requests, 1)
	req := classifier.requests[0]
	assert.True(t, req.UserWasLastSender)
	assert.Equal(t, 3, req.DaysSinceLastMessage)
	assert.Equal(t, 4, req.ThreadLength)
	assert.Equal(t, "hello", req.FullBody)
}

func TestRefreshRetriesTransientFetchErrors(t *testing.T) {
	provider := newFakeProvider(rawMessage("m1", "t1", "alice@example.com", "Budget"))
	provider.fetchErrs["m1"] = []error{errors.New("timeout"), errors.New("503")}

	r := newTestRefresher(t, provider, &fakeClassifier{}, nil, model.BatchConfig{FetchRetries: 2})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, provider.fetched["m1"])
	assert.Equal(t, 1, summary.Classified)
	assert.Empty(t, summary.Errors)
}

func TestRefreshGivesUpAfterRetries(t *testing.T) {
	provider := newFakeProvider(rawMessage("m1", "t1", "alice@example.com", "Budget"))
	provider.fetchErrs["m1"] = []error{errors.New("a"), errors.New("b"), errors.New("c")}

	r := newTestRefresher(t, provider, &fakeClassifier{}, nil, model.BatchConfig{FetchRetries: 1})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, provider.fetched["m1"])
	assert.Zero(t, summary.Classified)
	assert.False(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "fetching: b")
}

func TestRefreshAuthErrorIsNotRetried(t *testing.T) {
	provider := newFakeProvider()
	provider.listErr = &source.AuthError{Provider: source.ProviderGmail, Message: "token expired"}

	r := newTestRefresher(t, provider, &fakeClassifier{}, nil, model.BatchConfig{FetchRetries: 3})
	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
	assert.Equal(t, 1, provider.listCalls)
}

func TestRefreshRecordsReasoningFallbacks(t *testing.T) {
	provider := newFakeProvider(rawMessage("m1", "t1", "alice@example.com", "Budget"))
	classifier := &fakeClassifier{result: func(model.ClassificationRequest) model.ClassificationResult {
		return model.ClassificationResult{
			Category:        model.CategoryFYI,
			ImportanceScore: 0.5,
			Summary:         "Email from alice@example.com: Budget",
			Reason:          "reasoning call failed: boom",
			ModelUsed:       "test-model",
			Degraded:        "boom",
		}
	}}

	r := newTestRefresher(t, provider, classifier, testutil.NewTestStore(t), model.BatchConfig{})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Classified)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.Counts[model.CategoryFYI])
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "reasoning fallback: boom")
	assert.True(t, summary.Success)
}

func TestRefreshEmptyMailboxSucceeds(t *testing.T) {
	r := newTestRefresher(t, newFakeProvider(), &fakeClassifier{}, nil, model.BatchConfig{})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.True(t, summary.Success)
}

func TestRefreshBoundsConcurrencyAndBatchSize(t *testing.T) {
	var msgs []*model.RawMessage
	for i := range 8 {
		id := fmt.Sprintf("m%d", i)
		msgs = append(msgs, rawMessage(id, "t"+id, "alice@example.com", "Subject"))
	}
	provider := newFakeProvider(msgs...)
	classifier := &fakeClassifier{delay: 20 * time.Millisecond}

	r := newTestRefresher(t, provider, classifier, nil, model.BatchConfig{Size: 6, Concurrency: 2})
	summary, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Processed)
	assert.LessOrEqual(t, classifier.maxFlight.Load(), int32(2))
}

func TestBuildRequestWithoutThreadInfo(t *testing.T) {
	email := &model.NormalizedEmail{
		MessageID: "m1",
		ThreadID:  "t1",
		Subject:   "Hi",
		From:      testutil.UserEmail,
		Timestamp: fixedNow.Add(time.Hour),
	}

	req := BuildRequest(email, testutil.UserEmail, nil, fixedNow)
	assert.True(t, req.UserWasLastSender)
	assert.Zero(t, req.DaysSinceLastMessage)
	assert.Equal(t, 1, req.ThreadLength)
	assert.NotNil(t, req.To)
	assert.NotNil(t, req.Labels)
}

func TestBuildRequestFloorsDays(t *testing.T) {
	email := &model.NormalizedEmail{From: "alice@example.com", HasListHeaders: true}
	info := &source.ThreadInfo{
		MessageCount:  0,
		LastSender:    "alice@example.com",
		LastMessageAt: fixedNow.Add(-(47*time.Hour + 59*time.Minute)),
	}

	req := BuildRequest(email, testutil.UserEmail, info, fixedNow)
	assert.False(t, req.UserWasLastSender)
	assert.Equal(t, 1, req.DaysSinceLastMessage)
	assert.Equal(t, 1, req.ThreadLength)
	assert.True(t, req.IsNewsletter)
}
