package thread

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strptr(s string) *string { return &s }

func newTestEngine() *Engine {
	return NewEngine(NewInMemoryStore())
}

func mustApply(t *testing.T, e *Engine, articleID string, m *Mutation) *ArticleState {
	t.Helper()
	state, err := e.Apply(context.Background(), articleID, m)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	return state
}

func TestAnonymousReadIncrement(t *testing.T) {
	e := newTestEngine()

	state := mustApply(t, e, "site/a1", &Mutation{})
	if state.Readers != 1 {
		t.Fatalf("expected readers=1, got %d", state.Readers)
	}
	state = mustApply(t, e, "site/a1", &Mutation{})
	if state.Readers != 2 {
		t.Fatalf("expected readers=2, got %d", state.Readers)
	}
}

func TestCommentMutationDoesNotCountAsRead(t *testing.T) {
	e := newTestEngine()

	// An id makes it a comment action even without a status.
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("hello")})
	if state.Readers != 0 {
		t.Fatalf("comment insert must not increment readers, got %d", state.Readers)
	}
	state = mustApply(t, e, "site/a1", &Mutation{From: "0xabc", Status: "like"})
	if state.Readers != 0 {
		t.Fatalf("vote must not increment readers, got %d", state.Readers)
	}
}

func TestLikeThenDislikeMutualExclusion(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xAbC", Status: "like"})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xAbC", Status: "dislike"})

	if diff := cmp.Diff([]string{}, state.Likes); diff != "" {
		t.Fatalf("likes should be empty (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0xAbC"}, state.Dislikes); diff != "" {
		t.Fatalf("dislikes mismatch (-want +got):\n%s", diff)
	}
}

func TestLikeMovesToFront(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xaaa", Status: "like"})
	mustApply(t, e, "site/a1", &Mutation{From: "0xbbb", Status: "like"})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xaaa", Status: "like"})

	if diff := cmp.Diff([]string{"0xaaa", "0xbbb"}, state.Likes); diff != "" {
		t.Fatalf("like ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestUnrecognizedStatusClearsVote(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xabc", Status: "like"})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xabc", Status: "cancel"})

	if len(state.Likes) != 0 || len(state.Dislikes) != 0 {
		t.Fatalf("expected vote cleared, got likes=%v dislikes=%v", state.Likes, state.Dislikes)
	}
}

func TestVoteOnComment(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xauthor", ID: "c1", Content: strptr("post")})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xfan", Status: "like", ReplyTo: "c1"})

	c := state.Comments["c1"]
	if diff := cmp.Diff([]string{"0xfan"}, c.Likes); diff != "" {
		t.Fatalf("comment likes mismatch (-want +got):\n%s", diff)
	}
	if len(state.Likes) != 0 {
		t.Fatalf("article likes should be untouched, got %v", state.Likes)
	}
}

func TestReplyToMissingParent(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{})
	before, _ := e.Get(context.Background(), "site/a1")

	_, err := e.Apply(context.Background(), "site/a1", &Mutation{From: "0xabc", Status: "like", ReplyTo: "nope"})
	if !errors.Is(err, ErrNoParent) {
		t.Fatalf("expected ErrNoParent, got %v", err)
	}

	after, _ := e.Get(context.Background(), "site/a1")
	if after.Readers != before.Readers {
		t.Fatalf("rejected mutation must not change readers: before=%d after=%d", before.Readers, after.Readers)
	}
}

func TestDuplicateIDLeavesStateUntouched(t *testing.T) {
	e := newTestEngine()

	first := mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("original")})

	_, err := e.Apply(context.Background(), "site/a1", &Mutation{From: "0xeee", ID: "c1", Content: strptr("overwrite")})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	after, _ := e.Get(context.Background(), "site/a1")
	if diff := cmp.Diff(first.Comments["c1"], after.Comments["c1"]); diff != "" {
		t.Fatalf("stored comment changed after rejected insert (-want +got):\n%s", diff)
	}
}

func TestTombstoneDeletesComment(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("bye")})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("")})

	if _, ok := state.Comments["c1"]; ok {
		t.Fatal("tombstoned comment should be removed")
	}
}

func TestAbsentContentLeavesCommentAlone(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("keep me")})
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xabc", ID: "c1"})

	c, ok := state.Comments["c1"]
	if !ok || c.Content != "keep me" {
		t.Fatalf("absent content must not delete or alter the comment, got %+v", c)
	}
}

func TestCascadeDeleteRemovesOrphanChain(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xa", ID: "x", Content: strptr("root")})
	mustApply(t, e, "site/a1", &Mutation{From: "0xb", ID: "y", Content: strptr("reply"), ReplyTo: "x"})
	mustApply(t, e, "site/a1", &Mutation{From: "0xc", ID: "z", Content: strptr("reply to reply"), ReplyTo: "y"})

	// Deleting x orphans y, which orphans z; one Apply clears the chain.
	state := mustApply(t, e, "site/a1", &Mutation{From: "0xa", ID: "x", Content: strptr("")})
	if len(state.Comments) != 0 {
		t.Fatalf("expected all comments pruned, got %v", state.Comments)
	}
}

func TestPruneInvariantAfterEveryMutation(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{From: "0xa", ID: "p", Content: strptr("parent")})
	mustApply(t, e, "site/a1", &Mutation{From: "0xb", ID: "q", Content: strptr("child"), ReplyTo: "p"})
	mustApply(t, e, "site/a1", &Mutation{From: "0xa", ID: "p", Content: strptr("")})
	state := mustApply(t, e, "site/a1", &Mutation{})

	for id, c := range state.Comments {
		if c.ReplyTo == "" {
			continue
		}
		if _, ok := state.Comments[c.ReplyTo]; !ok {
			t.Fatalf("comment %s dangles from missing parent %s", id, c.ReplyTo)
		}
	}
}

func TestCommentCarriesProvenanceAndTimestamp(t *testing.T) {
	e := newTestEngine()

	state := mustApply(t, e, "site/a1", &Mutation{
		From:      "0xabc",
		ID:        "c1",
		Content:   strptr("hello"),
		Trusted:   "metamask",
		Timestamp: 1700000000000,
	})

	c := state.Comments["c1"]
	if c.Trusted != "metamask" {
		t.Fatalf("expected trusted tag carried through, got %q", c.Trusted)
	}
	if c.Timestamp != 1700000000000 {
		t.Fatalf("expected stamped timestamp, got %d", c.Timestamp)
	}
}

func TestFreshArticleDefaults(t *testing.T) {
	e := newTestEngine()

	state, err := e.Get(context.Background(), "site/new")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	want := NewArticleState("site/new")
	if diff := cmp.Diff(want, state); diff != "" {
		t.Fatalf("fresh article state mismatch (-want +got):\n%s", diff)
	}
}

func TestGetDoesNotIncrementReaders(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{})
	e.Get(context.Background(), "site/a1")
	e.Get(context.Background(), "site/a1")

	state, _ := e.Get(context.Background(), "site/a1")
	if state.Readers != 1 {
		t.Fatalf("plain queries must not count as reads, got readers=%d", state.Readers)
	}
}

func TestConcurrentMutationsNoLostUpdate(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	const readers = 50
	var wg sync.WaitGroup
	wg.Add(readers + 1)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.Apply(ctx, "site/a1", &Mutation{}); err != nil {
				t.Errorf("read mutation failed: %v", err)
			}
		}()
	}
	go func() {
		defer wg.Done()
		if _, err := e.Apply(ctx, "site/a1", &Mutation{From: "0xabc", ID: "c1", Content: strptr("racing")}); err != nil {
			t.Errorf("comment insert failed: %v", err)
		}
	}()
	wg.Wait()

	state, _ := e.Get(ctx, "site/a1")
	if state.Readers != readers {
		t.Fatalf("lost read increment: expected %d, got %d", readers, state.Readers)
	}
	if _, ok := state.Comments["c1"]; !ok {
		t.Fatal("lost comment insert")
	}
}

func TestArticlesAreIndependent(t *testing.T) {
	e := newTestEngine()

	mustApply(t, e, "site/a1", &Mutation{})
	state, _ := e.Get(context.Background(), "site/a2")
	if state.Readers != 0 {
		t.Fatalf("articles must not share state, got readers=%d", state.Readers)
	}
}

type failingStore struct {
	loadErr error
	saveErr error
	inner   *InMemoryStore
}

func (s *failingStore) Load(ctx context.Context, id string) (*ArticleState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.inner.Load(ctx, id)
}

func (s *failingStore) Save(ctx context.Context, id string, st *ArticleState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.inner.Save(ctx, id, st)
}

func TestStorageFaultSurfacesAsStorageError(t *testing.T) {
	boom := errors.New("connection refused")
	e := NewEngine(&failingStore{saveErr: boom, inner: NewInMemoryStore()})

	_, err := e.Apply(context.Background(), "site/a1", &Mutation{})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("StorageError should wrap the underlying fault")
	}
	if IsRejection(err) {
		t.Fatal("storage faults are not business rejections")
	}
}
