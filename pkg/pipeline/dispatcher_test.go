package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
	"github.com/vellum-io/vellum/pkg/queue"
)

type fakeStage struct {
	name   string
	prefix string
	err    error

	mu        sync.Mutex
	processed []string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Match(_, key string) bool {
	return strings.HasPrefix(key, s.prefix)
}

func (s *fakeStage) Process(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	s.processed = append(s.processed, bucket+"/"+key)
	s.mu.Unlock()
	return s.err
}

func (s *fakeStage) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

func notificationPayload(t *testing.T, refs ...ObjectRef) []byte {
	t.Helper()
	n := Notification{}
	for _, ref := range refs {
		n.Records = append(n.Records, Record{
			S3: RecordS3{
				Bucket: RecordBucket{Name: ref.Bucket},
				Object: RecordObject{Key: ref.Key},
			},
		})
	}
	payload, err := n.Encode()
	require.NoError(t, err)
	return payload
}

func TestParseNotification(t *testing.T) {
	t.Run("decodes records", func(t *testing.T) {
		refs, err := ParseNotification(notificationPayload(t,
			ObjectRef{Bucket: "docs", Key: "raw/a.pdf"},
			ObjectRef{Bucket: "docs", Key: "raw/b.pdf"},
		))
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, ObjectRef{Bucket: "docs", Key: "raw/a.pdf"}, refs[0])
	})

	t.Run("unescapes URL-encoded keys", func(t *testing.T) {
		refs, err := ParseNotification([]byte(
			`{"Records":[{"s3":{"bucket":{"name":"docs"},"object":{"key":"raw/my+scan%281%29.pdf"}}}]}`))
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "raw/my scan(1).pdf", refs[0].Key)
	})

	t.Run("malformed payload is a parse error", func(t *testing.T) {
		_, err := ParseNotification([]byte("not json"))
		assert.ErrorIs(t, err, kind.ErrParse)
	})

	t.Run("empty records are skipped", func(t *testing.T) {
		refs, err := ParseNotification([]byte(`{"Records":[]}`))
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestDispatcher_RoutesByMatch(t *testing.T) {
	raw := &fakeStage{name: "classifier", prefix: "raw/"}
	pages := &fakeStage{name: "combine", prefix: "text-pages/"}
	d := NewDispatcher(hclog.NewNullLogger(), 2, raw, pages)

	err := d.Dispatch(context.Background(), notificationPayload(t,
		ObjectRef{Bucket: "docs", Key: "raw/a.pdf"},
		ObjectRef{Bucket: "docs", Key: "text-pages/doc/page_001.md"},
		ObjectRef{Bucket: "docs", Key: "unclaimed/x.bin"},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/raw/a.pdf"}, raw.seen())
	assert.Equal(t, []string{"docs/text-pages/doc/page_001.md"}, pages.seen())
}

func TestDispatcher_IsolatesRecordFailures(t *testing.T) {
	bad := &fakeStage{name: "bad", prefix: "raw/", err: errors.New("boom")}
	good := &fakeStage{name: "good", prefix: "text-pages/"}
	d := NewDispatcher(hclog.NewNullLogger(), 2, bad, good)

	err := d.Dispatch(context.Background(), notificationPayload(t,
		ObjectRef{Bucket: "docs", Key: "raw/a.pdf"},
		ObjectRef{Bucket: "docs", Key: "raw/b.pdf"},
		ObjectRef{Bucket: "docs", Key: "text-pages/doc/page_001.md"},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw/a.pdf")
	assert.Contains(t, err.Error(), "raw/b.pdf")

	// The healthy record was still processed.
	assert.Len(t, good.seen(), 1)
	assert.Len(t, bad.seen(), 2)
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	var mu sync.Mutex
	var inFlight, peak int

	stage := &slowStage{
		onProcess: func() {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}
	d := NewDispatcher(hclog.NewNullLogger(), 2, stage)

	refs := make([]ObjectRef, 8)
	for i := range refs {
		refs[i] = ObjectRef{Bucket: "docs", Key: fmt.Sprintf("raw/%d.pdf", i)}
	}
	require.NoError(t, d.Dispatch(context.Background(), notificationPayload(t, refs...)))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "concurrency must stay within the bound")
}

type slowStage struct {
	onProcess func()
}

func (s *slowStage) Name() string           { return "slow" }
func (s *slowStage) Match(_, _ string) bool { return true }

func (s *slowStage) Process(context.Context, string, string) error {
	s.onProcess()
	return nil
}

func TestDispatcher_Handler(t *testing.T) {
	t.Run("permanent failures are dropped after logging", func(t *testing.T) {
		stage := &fakeStage{name: "bad", prefix: "raw/", err: kind.ErrParse}
		d := NewDispatcher(hclog.NewNullLogger(), 1, stage)

		err := d.Handler()(context.Background(), queue.Message{
			Value: notificationPayload(t, ObjectRef{Bucket: "docs", Key: "raw/a.pdf"}),
		})
		assert.NoError(t, err, "permanent failures must not trigger redelivery")
	})

	t.Run("retryable failures propagate for redelivery", func(t *testing.T) {
		stage := &fakeStage{
			name:   "flaky",
			prefix: "raw/",
			err:    fmt.Errorf("s3 hiccup: %w", kind.ErrBackendUnavailable),
		}
		d := NewDispatcher(hclog.NewNullLogger(), 1, stage)

		err := d.Handler()(context.Background(), queue.Message{
			Value: notificationPayload(t, ObjectRef{Bucket: "docs", Key: "raw/a.pdf"}),
		})
		assert.Error(t, err)
	})
}

func TestNotifyingGateway(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()
	store := aferofs.NewMem()
	gw := NewNotifyingGateway(store, broker, "notifications", hclog.NewNullLogger())

	collect := func(t *testing.T, want int) []ObjectRef {
		t.Helper()
		var mu sync.Mutex
		var got []ObjectRef

		consumer := broker.Consumer("notifications")
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			_ = consumer.Start(cctx, func(_ context.Context, msg queue.Message) error {
				refs, err := ParseNotification(msg.Value)
				if err != nil {
					return err
				}
				mu.Lock()
				got = append(got, refs...)
				mu.Unlock()
				return nil
			})
		}()
		defer consumer.Stop()

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) >= want
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		return append([]ObjectRef(nil), got...)
	}

	t.Run("put publishes a notification", func(t *testing.T) {
		require.NoError(t, gw.Put(ctx, "docs", "raw/a.pdf", []byte("%PDF"), "application/pdf"))
		got := collect(t, 1)
		assert.Contains(t, got, ObjectRef{Bucket: "docs", Key: "raw/a.pdf"})
	})

	t.Run("copy publishes for the destination", func(t *testing.T) {
		require.NoError(t, gw.Copy(ctx, "docs", "raw/a.pdf", "docs", "pdf-raw/a.pdf"))
		got := collect(t, 1)
		assert.Contains(t, got, ObjectRef{Bucket: "docs", Key: "pdf-raw/a.pdf"})
	})

	t.Run("reads pass through without events", func(t *testing.T) {
		data, err := gw.Get(ctx, "docs", "raw/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), data)
	})
}
