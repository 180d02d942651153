package thread

// ArticleState is the full comment-thread state attached to one article.
// Likes and dislikes are ordered address lists with set semantics: every
// mutation keeps an address in at most one of the two.
type ArticleState struct {
	ArticleID string              `json:"articleid"`
	Readers   int                 `json:"readers"`
	Likes     []string            `json:"likes"`
	Dislikes  []string            `json:"dislikes"`
	Comments  map[string]*Comment `json:"comments"`
}

// Comment is a single post in the thread. The id is assigned by the author
// at creation time. ReplyTo is a weak reference: it names another comment by
// id and never implies the parent still exists.
type Comment struct {
	ID        string   `json:"uuid"`
	From      string   `json:"from"`
	Timestamp int64    `json:"timestamp"`
	Content   string   `json:"content"`
	ReplyTo   string   `json:"replyTo,omitempty"`
	Trusted   string   `json:"trusted,omitempty"`
	Likes     []string `json:"likes"`
	Dislikes  []string `json:"dislikes"`
}

// Mutation is one validated state change request. Content is a pointer so
// that "absent" and "present but empty" stay distinguishable: empty content
// tombstones the comment named by ID, absent content leaves bodies alone.
type Mutation struct {
	Status    string  `json:"status,omitempty"`
	From      string  `json:"from,omitempty"`
	Content   *string `json:"content,omitempty"`
	ID        string  `json:"uuid,omitempty"`
	ReplyTo   string  `json:"replyTo,omitempty"`
	Sign      string  `json:"sign,omitempty"`
	Trusted   string  `json:"trusted,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// NewArticleState returns the all-empty default state for an article.
func NewArticleState(articleID string) *ArticleState {
	return &ArticleState{
		ArticleID: articleID,
		Likes:     make([]string, 0),
		Dislikes:  make([]string, 0),
		Comments:  make(map[string]*Comment),
	}
}

// normalize repairs nil slices and maps after deserialization so the rest of
// the engine never has to nil-check, and so JSON encodes [] instead of null.
func (s *ArticleState) normalize() {
	if s.Likes == nil {
		s.Likes = make([]string, 0)
	}
	if s.Dislikes == nil {
		s.Dislikes = make([]string, 0)
	}
	if s.Comments == nil {
		s.Comments = make(map[string]*Comment)
	}
	for _, c := range s.Comments {
		if c.Likes == nil {
			c.Likes = make([]string, 0)
		}
		if c.Dislikes == nil {
			c.Dislikes = make([]string, 0)
		}
	}
}

// withoutAddr filters addr out of an address list.
func withoutAddr(list []string, addr string) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

// prependAddr moves addr to the front of an address list, dropping any
// earlier occurrence so membership stays single.
func prependAddr(list []string, addr string) []string {
	return append([]string{addr}, withoutAddr(list, addr)...)
}

func cloneState(s *ArticleState) *ArticleState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Likes = append([]string(nil), s.Likes...)
	cp.Dislikes = append([]string(nil), s.Dislikes...)
	cp.Comments = make(map[string]*Comment, len(s.Comments))
	for id, c := range s.Comments {
		cc := *c
		cc.Likes = append([]string(nil), c.Likes...)
		cc.Dislikes = append([]string(nil), c.Dislikes...)
		cp.Comments[id] = &cc
	}
	return &cp
}
