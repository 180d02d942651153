package thread

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Engine is the single authority over article state. Apply runs one
// mutation's full read-modify-write cycle under a per-article lock, so
// mutations for the same article never interleave while different articles
// proceed in parallel.
type Engine struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one article, creating it on first use.
// Article locks are never released back; the set of hot articles per process
// stays small.
func (e *Engine) lockFor(articleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[articleID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[articleID] = l
	}
	return l
}

// Apply executes one mutation against the article's current state and
// persists the result. It is atomic: on any rejection the prior snapshot is
// left untouched. The returned state is the caller's to keep.
func (e *Engine) Apply(ctx context.Context, articleID string, m *Mutation) (*ArticleState, error) {
	l := e.lockFor(articleID)
	l.Lock()
	defer l.Unlock()

	state, err := e.store.Load(ctx, articleID)
	if errors.Is(err, ErrNotFound) {
		state = NewArticleState(articleID)
	} else if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	state.ArticleID = articleID
	state.normalize()

	// A mutation carrying an id is a comment action even without a status,
	// so only a fully bare mutation counts as a read.
	if m.Status == "" && m.ID == "" {
		state.Readers++
	}

	if m.ReplyTo != "" {
		if _, ok := state.Comments[m.ReplyTo]; !ok {
			return nil, ErrNoParent
		}
	}

	if m.Status != "" {
		e.applyVote(state, m)
	}

	if m.ID != "" {
		if err := e.applyComment(state, m); err != nil {
			return nil, err
		}
	}

	pruneOrphans(state)

	if err := e.store.Save(ctx, articleID, state); err != nil {
		return nil, &StorageError{Op: "save", Err: err}
	}

	log.Debug().
		Str("article_id", articleID).
		Int("readers", state.Readers).
		Int("comments", len(state.Comments)).
		Msg("mutation applied")

	return state, nil
}

// Get returns the article's current state without mutating anything, the
// all-empty default if nothing was ever written. Plain queries do not count
// as reads; only Apply increments the reader counter.
func (e *Engine) Get(ctx context.Context, articleID string) (*ArticleState, error) {
	state, err := e.store.Load(ctx, articleID)
	if errors.Is(err, ErrNotFound) {
		state = NewArticleState(articleID)
	} else if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	state.ArticleID = articleID
	state.normalize()
	return state, nil
}

// applyVote records a like or dislike on the target (the parent comment if
// replyTo is set, the article otherwise). An address can hold at most one of
// the two, and a fresh vote moves to the front of the list. Any other
// non-empty status clears the address from both lists; clients rely on that
// as the cancel path, so the set of statuses is deliberately not an enum.
func (e *Engine) applyVote(state *ArticleState, m *Mutation) {
	likes, dislikes := &state.Likes, &state.Dislikes
	if m.ReplyTo != "" {
		parent := state.Comments[m.ReplyTo]
		likes, dislikes = &parent.Likes, &parent.Dislikes
	}

	switch m.Status {
	case "like":
		*dislikes = withoutAddr(*dislikes, m.From)
		*likes = prependAddr(*likes, m.From)
	case "dislike":
		*likes = withoutAddr(*likes, m.From)
		*dislikes = prependAddr(*dislikes, m.From)
	default:
		*likes = withoutAddr(*likes, m.From)
		*dislikes = withoutAddr(*dislikes, m.From)
	}
}

// applyComment inserts a new comment for non-empty content, or deletes the
// comment when content is present but explicitly empty. Absent content means
// the mutation does not touch comment bodies at all.
func (e *Engine) applyComment(state *ArticleState, m *Mutation) error {
	if m.Content == nil {
		return nil
	}
	if *m.Content != "" {
		if _, exists := state.Comments[m.ID]; exists {
			return ErrDuplicateID
		}
		ts := m.Timestamp
		if ts == 0 {
			ts = e.now().UnixMilli()
		}
		state.Comments[m.ID] = &Comment{
			ID:        m.ID,
			From:      m.From,
			Timestamp: ts,
			Content:   *m.Content,
			ReplyTo:   m.ReplyTo,
			Trusted:   m.Trusted,
			Likes:     make([]string, 0),
			Dislikes:  make([]string, 0),
		}
		return nil
	}
	delete(state.Comments, m.ID)
	return nil
}

// pruneOrphans removes every comment whose replyTo names a missing comment,
// repeating full passes until a pass removes nothing. Deleting a comment can
// orphan its own replies, so multi-level chains are fully cleared in one
// call.
func pruneOrphans(state *ArticleState) {
	for {
		removed := false
		for id, c := range state.Comments {
			if c.ReplyTo == "" {
				continue
			}
			if _, ok := state.Comments[c.ReplyTo]; !ok {
				delete(state.Comments, id)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}
