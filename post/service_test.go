package post

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeGenerator struct {
	mu         sync.Mutex
	calls      int
	draft      Draft
	editText   string
	err        error
	onGenerate func()
}

func (g *fakeGenerator) Generate(_ context.Context, topic string, _ Kind, withImage bool) (Draft, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.onGenerate != nil {
		g.onGenerate()
	}
	if g.err != nil {
		return Draft{}, g.err
	}
	d := g.draft
	if d.Text == "" {
		d.Text = "<b>" + topic + "</b> draft " + fmt.Sprint(g.calls)
	}
	if !withImage {
		d.ImageURL = ""
	}
	return d, nil
}

func (g *fakeGenerator) EditGenerate(_ context.Context, current, instruction string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.editText != "" {
		return g.editText, nil
	}
	return current + " (" + instruction + ")", nil
}

type fakeDeliverer struct {
	calls atomic.Int64
	err   error

	mu        sync.Mutex
	lastText  string
	lastImage string
}

func (d *fakeDeliverer) Deliver(_ context.Context, text, imageURL string) error {
	d.calls.Add(1)
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	d.lastText = text
	d.lastImage = imageURL
	d.mu.Unlock()
	return nil
}

func newTestService(gen *fakeGenerator, del *fakeDeliverer) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, gen, del, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func TestHandleCreateSanitizesText(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>unterminated", ImageURL: "https://img.example/x.jpg"}}
	svc, _ := newTestService(gen, &fakeDeliverer{})

	s, err := svc.HandleCreate(context.Background(), "101", "go releases", KindFull, true)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	if s.Text != "<b>unterminated</b>" {
		t.Fatalf("text = %q, want sanitized", s.Text)
	}
	if s.ImageURL != "https://img.example/x.jpg" {
		t.Fatalf("image url = %q", s.ImageURL)
	}
	if s.State != StateDraft {
		t.Fatalf("state = %q, want draft", s.State)
	}
}

func TestHandleCreateFallsBackToFreshIDOnCollision(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{}
	svc, _ := newTestService(gen, &fakeDeliverer{})
	ctx := context.Background()

	first, err := svc.HandleCreate(ctx, "101", "go", KindQuick, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	second, err := svc.HandleCreate(ctx, "101", "rust", KindQuick, false)
	if err != nil {
		t.Fatalf("HandleCreate() collision error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("collision produced same id %q", second.ID)
	}
	if second.ID == "" {
		t.Fatal("collision produced empty id")
	}
}

func TestHandleCreateTruncatesLongPosts(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: strings.Repeat("x", 5000)}}
	store := NewMemoryStore()
	svc := NewService(store, gen, &fakeDeliverer{}, Config{MaxPostLength: 100}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s, err := svc.HandleCreate(context.Background(), "101", "t", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	if !strings.HasSuffix(s.Text, truncationMarker) {
		t.Fatalf("truncated text missing marker: %q", s.Text)
	}
	if got := len([]rune(s.Text)); got > 100+len([]rune(truncationMarker)) {
		t.Fatalf("text length = %d runes, want <= %d", got, 100+len([]rune(truncationMarker)))
	}
}

func TestHandlePublishDeliversAndFinalizes(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>post</b>"}}
	del := &fakeDeliverer{}
	svc, _ := newTestService(gen, del)
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	if err := svc.HandlePublish(ctx, s.ID); err != nil {
		t.Fatalf("HandlePublish() error = %v", err)
	}
	if got := del.calls.Load(); got != 1 {
		t.Fatalf("delivery attempts = %d, want 1", got)
	}

	after, err := svc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() after publish error = %v", err)
	}
	if after.State != StatePublished {
		t.Fatalf("state = %q, want published", after.State)
	}

	// Published is terminal: every further transition fails.
	if err := svc.HandlePublish(ctx, s.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second publish error = %v, want ErrInvalidState", err)
	}
	if _, err := svc.HandleRegenerate(ctx, s.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("regenerate after publish error = %v, want ErrInvalidState", err)
	}
	if err := svc.HandleCancel(ctx, s.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after publish error = %v, want ErrInvalidState", err)
	}
	if got := del.calls.Load(); got != 1 {
		t.Fatalf("delivery attempts after failed transitions = %d, want 1", got)
	}
}

func TestHandlePublishDeliveryFailureStaysDraft(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>post</b>"}}
	del := &fakeDeliverer{err: errors.New("channel unreachable")}
	svc, _ := newTestService(gen, del)
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	if err := svc.HandlePublish(ctx, s.ID); err == nil {
		t.Fatal("HandlePublish() expected delivery error")
	}
	if got := del.calls.Load(); got != 1 {
		t.Fatalf("delivery attempts = %d, want 1 (no automatic retry)", got)
	}

	after, err := svc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.State != StateDraft || after.Text != s.Text {
		t.Fatalf("after failed delivery: state=%q text=%q, want draft with unchanged text", after.State, after.Text)
	}
}

func TestHandleRegenerateKeepsImage(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>v1</b>", ImageURL: "https://img.example/a.jpg"}}
	svc, _ := newTestService(gen, &fakeDeliverer{})
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, true)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}

	gen.draft = Draft{Text: "<b>v2"}
	text, err := svc.HandleRegenerate(ctx, s.ID)
	if err != nil {
		t.Fatalf("HandleRegenerate() error = %v", err)
	}
	if text != "<b>v2</b>" {
		t.Fatalf("regenerated text = %q", text)
	}

	after, _ := svc.Get(ctx, s.ID)
	if after.ImageURL != "https://img.example/a.jpg" {
		t.Fatalf("image url changed on regenerate: %q", after.ImageURL)
	}
	if after.State != StateDraft {
		t.Fatalf("state = %q, want draft", after.State)
	}
}

func TestHandleRegenerateFailureLeavesSessionUnchanged(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>v1</b>"}}
	svc, _ := newTestService(gen, &fakeDeliverer{})
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}

	gen.err = errors.New("model overloaded")
	if _, err := svc.HandleRegenerate(ctx, s.ID); err == nil {
		t.Fatal("HandleRegenerate() expected generation error")
	}

	after, _ := svc.Get(ctx, s.ID)
	if after.Text != "<b>v1</b>" || after.State != StateDraft {
		t.Fatalf("session changed on failed regenerate: %+v", after)
	}
}

func TestHandleRegenerateDiscardsResultAfterCancel(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>v1</b>"}}
	svc, _ := newTestService(gen, &fakeDeliverer{})
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}

	// Cancel the session while the generation call is in flight.
	cancelled := make(chan struct{})
	gen.onGenerate = func() {
		select {
		case <-cancelled:
		default:
			if err := svc.HandleCancel(ctx, s.ID); err != nil {
				t.Errorf("HandleCancel() error = %v", err)
			}
			close(cancelled)
		}
	}
	gen.draft = Draft{Text: "<b>v2</b>"}

	if _, err := svc.HandleRegenerate(ctx, s.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("HandleRegenerate() after mid-flight cancel error = %v, want ErrInvalidState", err)
	}
	if _, err := svc.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancelled session still present: err = %v", err)
	}
}

func TestHandleEditRewritesInPlace(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>title</b> body"}, editText: "<b>title</b> shorter"}
	svc, _ := newTestService(gen, &fakeDeliverer{})
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}
	text, err := svc.HandleEdit(ctx, s.ID, "shorten it")
	if err != nil {
		t.Fatalf("HandleEdit() error = %v", err)
	}
	if text != "<b>title</b> shorter" {
		t.Fatalf("edited text = %q", text)
	}

	after, _ := svc.Get(ctx, s.ID)
	if after.State != StateDraft || after.PendingEdit != "" {
		t.Fatalf("after edit: state=%q pending=%q, want draft with cleared pending edit", after.State, after.PendingEdit)
	}
}

func TestHandleCancelIsIdempotentForAbsentIDs(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(&fakeGenerator{}, &fakeDeliverer{})
	if err := svc.HandleCancel(context.Background(), "never-existed"); err != nil {
		t.Fatalf("HandleCancel() absent id error = %v, want nil", err)
	}
}

func TestConcurrentCancelAndPublishExactlyOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		gen := &fakeGenerator{draft: Draft{Text: "<b>post</b>"}}
		del := &fakeDeliverer{}
		svc, store := newTestService(gen, del)

		s, err := svc.HandleCreate(ctx, "101", "go", KindFull, false)
		if err != nil {
			t.Fatalf("HandleCreate() error = %v", err)
		}

		var wg sync.WaitGroup
		var pubErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			pubErr = svc.HandlePublish(ctx, s.ID)
		}()
		go func() {
			defer wg.Done()
			cancelErr = svc.HandleCancel(ctx, s.ID)
		}()
		wg.Wait()

		pubOK := pubErr == nil
		cancelOK := cancelErr == nil
		if pubOK == cancelOK {
			t.Fatalf("round %d: publish err = %v, cancel err = %v; want exactly one success", i, pubErr, cancelErr)
		}
		if pubOK {
			after, err := store.Get(ctx, s.ID)
			if err != nil {
				t.Fatalf("round %d: published session missing: %v", i, err)
			}
			if after.State != StatePublished {
				t.Fatalf("round %d: state = %q, want published", i, after.State)
			}
			if !errors.Is(cancelErr, ErrInvalidState) {
				t.Fatalf("round %d: cancel error = %v, want ErrInvalidState", i, cancelErr)
			}
			if got := del.calls.Load(); got != 1 {
				t.Fatalf("round %d: delivery attempts = %d, want 1", i, got)
			}
		} else {
			if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("round %d: cancelled session still present: %v", i, err)
			}
			if !errors.Is(pubErr, ErrInvalidState) {
				t.Fatalf("round %d: publish error = %v, want ErrInvalidState", i, pubErr)
			}
			if got := del.calls.Load(); got != 0 {
				t.Fatalf("round %d: delivery attempts = %d, want 0", i, got)
			}
		}
	}
}

func TestFullLifecycleScenario(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{draft: Draft{Text: "<b>X</b> v1"}}
	del := &fakeDeliverer{}
	svc, _ := newTestService(gen, del)
	ctx := context.Background()

	s, err := svc.HandleCreate(ctx, "101", "X", KindFull, false)
	if err != nil {
		t.Fatalf("HandleCreate() error = %v", err)
	}

	gen.draft = Draft{Text: "<b>X</b> v2"}
	if _, err := svc.HandleRegenerate(ctx, s.ID); err != nil {
		t.Fatalf("HandleRegenerate() error = %v", err)
	}

	gen.editText = "<b>X</b> v2 short"
	if _, err := svc.HandleEdit(ctx, s.ID, "shorten"); err != nil {
		t.Fatalf("HandleEdit() error = %v", err)
	}

	if err := svc.HandlePublish(ctx, s.ID); err != nil {
		t.Fatalf("HandlePublish() error = %v", err)
	}
	del.mu.Lock()
	delivered := del.lastText
	del.mu.Unlock()
	if delivered != "<b>X</b> v2 short" {
		t.Fatalf("delivered text = %q", delivered)
	}

	if err := svc.HandleCancel(ctx, s.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after publish error = %v, want ErrInvalidState", err)
	}
}
