package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quantgate/internal/apperr"
	"quantgate/internal/config"
	"quantgate/internal/metrics"
	"quantgate/pkg/types"
)

// fakeSource records adapter calls. It deliberately lacks the adjusted
// subscribe capability so the fallback path is observable.
type fakeSource struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	firehoseSubs int
	subErr       map[string]error
	firehoseErr  error
}

func (f *fakeSource) Subscribe(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subErr[symbol]; err != nil {
		return err
	}
	f.subscribed = append(f.subscribed, symbol)
	return nil
}

func (f *fakeSource) SubscribeFirehose(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firehoseErr != nil {
		return f.firehoseErr
	}
	f.firehoseSubs++
	return nil
}

func (f *fakeSource) Unsubscribe(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, symbol)
	return nil
}

func (f *fakeSource) unsubCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.unsubscribed {
		if s == symbol {
			n++
		}
	}
	return n
}

// adjustedSource adds the adjusted-quote capability on top of fakeSource.
type adjustedSource struct {
	*fakeSource
	adjusted []string
}

func (a *adjustedSource) SubscribeAdjusted(ctx context.Context, symbol string, adjust types.AdjustMode) error {
	a.mu.Lock()
	a.adjusted = append(a.adjusted, symbol+":"+string(adjust))
	a.mu.Unlock()
	return nil
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		MaxSubscriptions: 100,
		QueueDepth:       16,
		HeartbeatTimeout: time.Minute,
		FirehoseEnabled:  false,
	}
}

func newTestManager(cfg config.StreamConfig, source QuoteSource) *Manager {
	return NewManager(source, cfg, zerolog.Nop(), metrics.New())
}

func frame(symbol string, seq int64) types.TickFrame {
	return types.TickFrame{StockCode: symbol, Time: seq, LastPrice: 10 + float64(seq)/100}
}

func TestSubscribeEmptySymbols(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})

	tests := []struct {
		name    string
		symbols []string
	}{
		{"nil", nil},
		{"empty", []string{}},
		{"whitespace only", []string{"  ", "\t"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Subscribe(context.Background(), tt.symbols, types.AdjustNone)
			if !apperr.IsCode(err, apperr.CodeEmptySymbols) {
				t.Errorf("Subscribe(%v) error = %v, want EMPTY_SYMBOLS", tt.symbols, err)
			}
		})
	}
}

func TestSubscribeLimit(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.MaxSubscriptions = 3
	src := &fakeSource{}
	m := newTestManager(cfg, src)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		info, err := m.Subscribe(ctx, []string{fmt.Sprintf("00000%d.SZ", i+1)}, types.AdjustNone)
		if err != nil {
			t.Fatalf("Subscribe %d: %v", i, err)
		}
		ids = append(ids, info.SubscriptionID)
	}

	_, err := m.Subscribe(ctx, []string{"000009.SZ"}, types.AdjustNone)
	if !apperr.IsCode(err, apperr.CodeSubLimit) {
		t.Fatalf("fourth Subscribe error = %v, want SUB_LIMIT", err)
	}
	if got := len(m.List()); got != 3 {
		t.Errorf("len(List()) after failed subscribe = %d, want 3", got)
	}

	if err := m.Unsubscribe(ctx, ids[0]); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, err := m.Subscribe(ctx, []string{"000009.SZ"}, types.AdjustNone); err != nil {
		t.Errorf("Subscribe after freeing a slot: %v", err)
	}
}

func TestSubscribeRollbackOnUpstreamFailure(t *testing.T) {
	t.Parallel()
	src := &fakeSource{subErr: map[string]error{"600000.SH": errors.New("boom")}}
	m := newTestManager(testStreamConfig(), src)

	_, err := m.Subscribe(context.Background(), []string{"000001.SZ", "600000.SH"}, types.AdjustNone)
	if !apperr.IsCode(err, apperr.CodeUpstreamFailure) {
		t.Fatalf("Subscribe error = %v, want UPSTREAM_FAILURE", err)
	}
	if got := len(m.List()); got != 0 {
		t.Errorf("len(List()) after rollback = %d, want 0", got)
	}
	// The symbol acquired before the failure is released again.
	if got := src.unsubCount("000001.SZ"); got != 1 {
		t.Errorf("upstream unsubscribes for 000001.SZ = %d, want 1", got)
	}
}

func TestConcurrentSubscribesHoldCap(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.MaxSubscriptions = 5
	m := newTestManager(cfg, &fakeSource{})

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Subscribe(context.Background(), []string{fmt.Sprintf("30000%d.SZ", i)}, types.AdjustNone)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, limited := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperr.IsCode(err, apperr.CodeSubLimit):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 5 || limited != 5 {
		t.Errorf("ok = %d, limited = %d, want 5 and 5", ok, limited)
	}
	if got := len(m.List()); got != 5 {
		t.Errorf("len(List()) = %d, want 5", got)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})
	ctx := context.Background()

	if err := m.Unsubscribe(ctx, "no-such-id"); err != nil {
		t.Errorf("Unsubscribe(unknown) = %v, want nil", err)
	}

	info, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Unsubscribe(ctx, info.SubscriptionID); err != nil {
		t.Fatalf("first Unsubscribe: %v", err)
	}
	if err := m.Unsubscribe(ctx, info.SubscriptionID); err != nil {
		t.Errorf("second Unsubscribe = %v, want nil", err)
	}
}

func TestUnsubscribeSharedSymbol(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	m := newTestManager(testStreamConfig(), src)
	ctx := context.Background()

	a, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	if err := m.Unsubscribe(ctx, a.SubscriptionID); err != nil {
		t.Fatalf("Unsubscribe a: %v", err)
	}
	if got := src.unsubCount("000001.SZ"); got != 0 {
		t.Errorf("upstream unsubscribed while another subscription still references the symbol (count %d)", got)
	}

	if err := m.Unsubscribe(ctx, b.SubscriptionID); err != nil {
		t.Fatalf("Unsubscribe b: %v", err)
	}
	if got := src.unsubCount("000001.SZ"); got != 1 {
		t.Errorf("upstream unsubscribe count = %d, want 1", got)
	}
}

func TestOnFrameRoutesBySymbol(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})
	ctx := context.Background()

	info, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	m.OnFrame(frame("000001.SZ", 1))
	m.OnFrame(frame("600000.SH", 2)) // nobody wants this one
	m.OnFrame(frame("000001.SZ", 3))

	desc, err := m.Describe(info.SubscriptionID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.QueueLength != 2 {
		t.Errorf("QueueLength = %d, want 2", desc.QueueLength)
	}
}

func TestDropOldest(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.QueueDepth = 4
	m := newTestManager(cfg, &fakeSource{})
	ctx := context.Background()

	info, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := int64(1); i <= 10; i++ {
		m.OnFrame(frame("000001.SZ", i))
	}

	desc, err := m.Describe(info.SubscriptionID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.QueueLength != 4 {
		t.Errorf("QueueLength = %d, want 4", desc.QueueLength)
	}
	if desc.Dropped != 6 {
		t.Errorf("Dropped = %d, want 6", desc.Dropped)
	}

	// The survivors are the newest four, still in feed order.
	cur, err := m.Stream(info.SubscriptionID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cur.Close()

	for want := int64(7); want <= 10; want++ {
		fctx, cancel := context.WithTimeout(ctx, time.Second)
		f, err := cur.Next(fctx)
		cancel()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if f.Time != want {
			t.Errorf("frame seq = %d, want %d", f.Time, want)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := cur.Next(fctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next on drained queue = %v, want deadline exceeded", err)
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})
	ctx := context.Background()

	const consumers = 3
	const frames = 10

	var infos []types.SubscriptionInfo
	for i := 0; i < consumers; i++ {
		info, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
		if err != nil {
			t.Fatalf("Subscribe %d: %v", i, err)
		}
		infos = append(infos, info)
	}

	for i := int64(1); i <= frames; i++ {
		m.OnFrame(frame("000001.SZ", i))
	}

	for _, info := range infos {
		cur, err := m.Stream(info.SubscriptionID)
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		last := int64(0)
		for i := 0; i < frames; i++ {
			fctx, cancel := context.WithTimeout(ctx, time.Second)
			f, err := cur.Next(fctx)
			cancel()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if f.Time <= last {
				t.Fatalf("out of order: seq %d after %d", f.Time, last)
			}
			last = f.Time
		}
		cur.Close()
	}
}

func TestNoDeliveryAfterUnsubscribe(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})
	ctx := context.Background()

	info, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cur, err := m.Stream(info.SubscriptionID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cur.Close()

	// Frames buffered before the unsubscribe must not surface after it.
	m.OnFrame(frame("000001.SZ", 1))
	m.OnFrame(frame("000001.SZ", 2))
	if err := m.Unsubscribe(ctx, info.SubscriptionID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	m.OnFrame(frame("000001.SZ", 3))

	if _, err := cur.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after unsubscribe = %v, want ErrClosed", err)
	}
}

func TestFirehoseDisabled(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})

	_, err := m.SubscribeFirehose(context.Background())
	if !apperr.IsCode(err, apperr.CodeFirehoseDisabled) {
		t.Errorf("SubscribeFirehose error = %v, want FIREHOSE_DISABLED", err)
	}
}

func TestFirehoseReceivesEverything(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.FirehoseEnabled = true
	src := &fakeSource{}
	m := newTestManager(cfg, src)
	ctx := context.Background()

	info, err := m.SubscribeFirehose(ctx)
	if err != nil {
		t.Fatalf("SubscribeFirehose: %v", err)
	}
	if info.Kind != types.KindFirehose {
		t.Errorf("Kind = %v, want firehose", info.Kind)
	}

	m.OnFrame(frame("000001.SZ", 1))
	m.OnFrame(frame("600000.SH", 2))
	m.OnFrame(frame("430047.BJ", 3))

	desc, _ := m.Describe(info.SubscriptionID)
	if desc.QueueLength != 3 {
		t.Errorf("QueueLength = %d, want 3", desc.QueueLength)
	}

	if err := m.Unsubscribe(ctx, info.SubscriptionID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got := src.unsubCount("*"); got != 1 {
		t.Errorf(`upstream unsubscribe count for "*" = %d, want 1`, got)
	}
}

func TestFirehoseUpstreamRefusalPassesThrough(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.FirehoseEnabled = true
	src := &fakeSource{firehoseErr: apperr.NotSupportedInSim("subscribe_whole_quote")}
	m := newTestManager(cfg, src)

	_, err := m.SubscribeFirehose(context.Background())
	if !apperr.IsCode(err, apperr.CodeNotSupportedInSim) {
		t.Fatalf("SubscribeFirehose error = %v, want NOT_SUPPORTED_IN_SIM", err)
	}
	if got := len(m.List()); got != 0 {
		t.Errorf("len(List()) after refusal = %d, want 0", got)
	}
}

func TestAdjustedSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Capable source gets the adjusted call.
	src := &adjustedSource{fakeSource: &fakeSource{}}
	m := newTestManager(testStreamConfig(), src)
	if _, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustFront); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	src.mu.Lock()
	adjusted := append([]string(nil), src.adjusted...)
	plain := len(src.subscribed)
	src.mu.Unlock()
	if len(adjusted) != 1 || adjusted[0] != "000001.SZ:front" {
		t.Errorf("adjusted calls = %v, want [000001.SZ:front]", adjusted)
	}
	if plain != 0 {
		t.Errorf("plain subscribe calls = %d, want 0", plain)
	}

	// Incapable source falls back to a plain subscribe.
	plainSrc := &fakeSource{}
	m2 := newTestManager(testStreamConfig(), plainSrc)
	if _, err := m2.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustBack); err != nil {
		t.Fatalf("Subscribe fallback: %v", err)
	}
	plainSrc.mu.Lock()
	got := len(plainSrc.subscribed)
	plainSrc.mu.Unlock()
	if got != 1 {
		t.Errorf("plain subscribe calls = %d, want 1", got)
	}
}

func TestSweepIdle(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	src := &fakeSource{}
	m := newTestManager(cfg, src)
	ctx := context.Background()

	stale, err := m.Subscribe(ctx, []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe stale: %v", err)
	}
	fresh, err := m.Subscribe(ctx, []string{"600000.SH"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe fresh: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	m.Touch(fresh.SubscriptionID)
	m.sweepIdle(ctx)

	if _, err := m.Describe(stale.SubscriptionID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("stale subscription still present: %v", err)
	}
	if _, err := m.Describe(fresh.SubscriptionID); err != nil {
		t.Errorf("fresh subscription swept: %v", err)
	}
	if got := src.unsubCount("000001.SZ"); got != 1 {
		t.Errorf("upstream unsubscribe count = %d, want 1", got)
	}
}

func TestShutdownRemovesEverything(t *testing.T) {
	t.Parallel()
	cfg := testStreamConfig()
	cfg.FirehoseEnabled = true
	src := &fakeSource{}
	m := newTestManager(cfg, src)
	ctx := context.Background()

	if _, err := m.Subscribe(ctx, []string{"000001.SZ", "600000.SH"}, types.AdjustNone); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := m.SubscribeFirehose(ctx); err != nil {
		t.Fatalf("SubscribeFirehose: %v", err)
	}

	m.Shutdown(ctx)

	if got := len(m.List()); got != 0 {
		t.Errorf("len(List()) after shutdown = %d, want 0", got)
	}
	if got := src.unsubCount("000001.SZ") + src.unsubCount("600000.SH") + src.unsubCount("*"); got != 3 {
		t.Errorf("upstream unsubscribes = %d, want 3", got)
	}
}

func TestDescribeNotFound(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})

	if _, err := m.Describe("missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("Describe(missing) error = %v, want NOT_FOUND", err)
	}
	if _, err := m.Stream("missing"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("Stream(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestCursorHonoursContext(t *testing.T) {
	t.Parallel()
	m := newTestManager(testStreamConfig(), &fakeSource{})

	info, err := m.Subscribe(context.Background(), []string{"000001.SZ"}, types.AdjustNone)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cur, err := m.Stream(info.SubscriptionID)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer cur.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cur.Next(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Next = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not observe cancellation")
	}
}
