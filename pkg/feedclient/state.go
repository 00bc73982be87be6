// Package feedclient keeps a client-side feed consistent with the server
// while merging optimistic updates, HTTP responses and realtime events.
package feedclient

import (
	"sort"
	"sync"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

const localPrefix = "local:"

// Item is one post as the client sees it.
type Item struct {
	feedevent.Post
	ClientRef   string
	Provisional bool // created locally, no server id yet
	LikePending bool // own like toggle waiting for the HTTP response
	LocalOnly   bool // the server call failed, the change only exists here
}

// CommentItem is one comment as the client sees it.
type CommentItem struct {
	feedevent.Comment
	ClientRef   string
	Provisional bool
	LocalOnly   bool
	countSeq    uint64 // commentSeq when the provisional comment was counted
}

// LikeTicket remembers what BeginLike changed so the HTTP outcome can settle it.
type LikeTicket struct {
	PostID    string
	PrevLiked bool
	PrevCount int64
	countSeq  uint64
}

// ShareTicket remembers what BeginShare changed.
type ShareTicket struct {
	PostID    string
	PrevCount int64
	countSeq  uint64
}

type entry struct {
	item       Item
	liked      map[string]bool   // actor -> last known state
	likeSeq    map[string]uint64 // actor -> last applied like event
	countSeq   uint64            // seq of the event that last set LikesCount
	commentSeq uint64            // seq of the event that last set CommentsCount
	shareSeq   uint64            // seq of the event that last set SharesCount
	comments   []*CommentItem
}

// 计数基线取加载时已应用的最大 seq，更早的事件已包含在服务端计数里
func newEntry(p feedevent.Post, self string, baseSeq uint64) *entry {
	e := &entry{
		item:       Item{Post: p},
		liked:      make(map[string]bool),
		likeSeq:    make(map[string]uint64),
		countSeq:   baseSeq,
		commentSeq: baseSeq,
		shareSeq:   baseSeq,
	}
	if self != "" {
		e.liked[self] = p.IsLiked
	}
	return e
}

// FeedState is the ordered post list of one client, newest first.
// Every merge is keyed by a stable id so repeated deliveries are no-ops.
type FeedState struct {
	mu sync.RWMutex

	self    string
	order   []*entry
	byID    map[string]*entry
	byRef   map[string]*entry
	deleted map[string]struct{} // post tombstones

	deletedComments map[string]struct{}
	online          []string
	lastSeq         uint64
}

func NewFeedState(selfID string) *FeedState {
	return &FeedState{
		self:            selfID,
		byID:            make(map[string]*entry),
		byRef:           make(map[string]*entry),
		deleted:         make(map[string]struct{}),
		deletedComments: make(map[string]struct{}),
	}
}

// SetSelf changes the identity used to interpret isLiked.
func (s *FeedState) SetSelf(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = userID
}

// Load replaces the list wholesale with a server page.
func (s *FeedState) Load(posts []feedevent.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]*entry, 0, len(posts))
	s.byID = make(map[string]*entry, len(posts))
	s.byRef = make(map[string]*entry)
	for _, p := range posts {
		if _, gone := s.deleted[p.ID]; gone {
			continue
		}
		if _, dup := s.byID[p.ID]; dup {
			continue
		}
		e := newEntry(p, s.self, s.lastSeq)
		s.order = append(s.order, e)
		s.byID[p.ID] = e
	}
}

// Posts returns a snapshot of the list.
func (s *FeedState) Posts() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.order))
	for i, e := range s.order {
		out[i] = e.item
	}
	return out
}

func (s *FeedState) Get(postID string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[postID]
	if !ok {
		return Item{}, false
	}
	return e.item, true
}

func (s *FeedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Online is the last presence list received.
func (s *FeedState) Online() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.online...)
}

// LastSeq is the highest event sequence applied so far.
func (s *FeedState) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// ---- likes ----

// BeginLike flips the own like state optimistically.
func (s *FeedState) BeginLike(postID string) (LikeTicket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[postID]
	if !ok || e.item.Provisional {
		return LikeTicket{}, false
	}
	t := LikeTicket{PostID: postID, PrevLiked: e.item.IsLiked, PrevCount: e.item.LikesCount, countSeq: e.countSeq}
	next := !e.item.IsLiked
	e.item.IsLiked = next
	e.liked[s.self] = next
	e.item.LikesCount = adjust(e.item.LikesCount, next)
	e.item.LikePending = true
	return t, true
}

// ConfirmLike applies the HTTP result. The count is only taken when no newer
// realtime count arrived since BeginLike.
func (s *FeedState) ConfirmLike(t LikeTicket, action string, likesCount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[t.PostID]
	if !ok {
		return
	}
	liked := action == actionLiked
	e.item.IsLiked = liked
	e.liked[s.self] = liked
	e.item.LikePending = false
	e.item.LocalOnly = false
	if e.countSeq == t.countSeq {
		e.item.LikesCount = likesCount
	}
}

// FailLike settles a failed toggle: rollback restores the previous state,
// otherwise the optimistic state stays and is marked local-only.
func (s *FeedState) FailLike(t LikeTicket, rollback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[t.PostID]
	if !ok {
		return
	}
	e.item.LikePending = false
	if !rollback {
		e.item.LocalOnly = true
		return
	}
	e.item.IsLiked = t.PrevLiked
	e.liked[s.self] = t.PrevLiked
	if e.countSeq == t.countSeq {
		e.item.LikesCount = t.PrevCount
	}
}

const actionLiked = "liked"

func adjust(n int64, up bool) int64 {
	if up {
		return n + 1
	}
	if n > 0 {
		return n - 1
	}
	return 0
}

func (s *FeedState) applyLike(seq uint64, p feedevent.LikeUpdatePayload) bool {
	e, ok := s.byID[p.PostID]
	if !ok {
		return false
	}
	if seq > 0 {
		if seq <= e.likeSeq[p.UserID] {
			return false
		}
		e.likeSeq[p.UserID] = seq
	}
	want := p.Action == actionLiked
	prev, known := e.liked[p.UserID]
	e.liked[p.UserID] = want
	if p.UserID == s.self {
		e.item.IsLiked = want
	}

	if seq > 0 {
		if seq > e.countSeq {
			e.item.LikesCount = p.LikesCount
			e.countSeq = seq
		}
		return true
	}
	// 无序号时只在状态真正变化时计数
	if known && prev == want {
		return false
	}
	e.item.LikesCount = adjust(e.item.LikesCount, want)
	return true
}

// ---- shares ----

// BeginShare bumps the share count optimistically.
func (s *FeedState) BeginShare(postID string) (ShareTicket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[postID]
	if !ok || e.item.Provisional {
		return ShareTicket{}, false
	}
	t := ShareTicket{PostID: postID, PrevCount: e.item.SharesCount, countSeq: e.shareSeq}
	e.item.SharesCount++
	return t, true
}

// ConfirmShare takes the committed count unless a newer realtime count arrived.
func (s *FeedState) ConfirmShare(t ShareTicket, sharesCount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[t.PostID]
	if !ok {
		return
	}
	e.item.LocalOnly = false
	if e.shareSeq == t.countSeq {
		e.item.SharesCount = sharesCount
	}
}

// FailShare undoes the bump on rollback, otherwise keeps it as local-only.
func (s *FeedState) FailShare(t ShareTicket, rollback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[t.PostID]
	if !ok {
		return
	}
	if !rollback {
		e.item.LocalOnly = true
		return
	}
	if e.shareSeq == t.countSeq {
		e.item.SharesCount = t.PrevCount
	}
}

func (s *FeedState) applyShare(seq uint64, p feedevent.ShareUpdatePayload) bool {
	e, ok := s.byID[p.PostID]
	if !ok {
		return false
	}
	if seq == 0 {
		// 每次转发都是独立事件
		e.item.SharesCount++
		return true
	}
	if seq <= e.shareSeq {
		return false
	}
	e.shareSeq = seq
	e.item.SharesCount = p.SharesCount
	return true
}

// ---- posts ----

// BeginCreate inserts a provisional post at the top, keyed by ref.
func (s *FeedState) BeginCreate(ref string, draft feedevent.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byRef[ref]; dup {
		return
	}
	draft.ID = localPrefix + ref
	e := newEntry(draft, s.self, s.lastSeq)
	e.item.ClientRef = ref
	e.item.Provisional = true
	s.order = append([]*entry{e}, s.order...)
	s.byID[draft.ID] = e
	s.byRef[ref] = e
}

// ConfirmCreate replaces the provisional post with the server's version.
func (s *FeedState) ConfirmCreate(ref string, p feedevent.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertPost(p, ref)
}

// FailCreate drops the provisional post or keeps it as local-only.
func (s *FeedState) FailCreate(ref string, rollback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byRef[ref]
	if !ok {
		return
	}
	if rollback {
		s.removeEntry(e)
		return
	}
	e.item.LocalOnly = true
}

// Remove deletes a post locally and remembers it so late events cannot revive it.
func (s *FeedState) Remove(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removePost(postID)
}

func (s *FeedState) removePost(postID string) bool {
	s.deleted[postID] = struct{}{}
	e, ok := s.byID[postID]
	if !ok {
		return false
	}
	s.removeEntry(e)
	return true
}

func (s *FeedState) removeEntry(e *entry) {
	delete(s.byID, e.item.ID)
	if ref := e.item.ClientRef; ref != "" && s.byRef[ref] == e {
		delete(s.byRef, ref)
	}
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *FeedState) upsertPost(p feedevent.Post, ref string) bool {
	if _, gone := s.deleted[p.ID]; gone {
		if pe, ok := s.byRef[ref]; ok {
			s.removeEntry(pe)
		}
		return false
	}
	if existing, ok := s.byID[p.ID]; ok {
		// 已存在：若仍有同 ref 的临时条目，合并掉
		if pe, ok := s.byRef[ref]; ok && pe != existing {
			s.removeEntry(pe)
		}
		return false
	}
	if pe, ok := s.byRef[ref]; ok {
		delete(s.byRef, ref)
		delete(s.byID, pe.item.ID)
		pe.item.Post = p
		pe.item.Provisional = false
		pe.item.LocalOnly = false
		pe.liked = map[string]bool{s.self: p.IsLiked}
		s.byID[p.ID] = pe
		return true
	}

	e := newEntry(p, s.self, s.lastSeq)
	e.item.ClientRef = ref
	// provisional entries stay on top; the rest is ordered by created_at desc
	i := sort.Search(len(s.order), func(i int) bool {
		o := s.order[i]
		return !o.item.Provisional && !o.item.CreatedAt.After(p.CreatedAt)
	})
	s.order = append(s.order, nil)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = e
	s.byID[p.ID] = e
	return true
}

// ---- comments ----

// LoadComments replaces the known comments of a post.
func (s *FeedState) LoadComments(postID string, comments []feedevent.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[postID]
	if !ok {
		return
	}
	e.comments = e.comments[:0]
	for _, c := range comments {
		if _, gone := s.deletedComments[c.ID]; gone {
			continue
		}
		e.comments = append(e.comments, &CommentItem{Comment: c})
	}
}

func (s *FeedState) Comments(postID string) []CommentItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[postID]
	if !ok {
		return nil
	}
	out := make([]CommentItem, len(e.comments))
	for i, c := range e.comments {
		out[i] = *c
	}
	return out
}

// BeginComment appends a provisional comment and bumps the count.
func (s *FeedState) BeginComment(postID, ref string, draft feedevent.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[postID]
	if !ok || e.item.Provisional {
		return false
	}
	draft.ID = localPrefix + ref
	draft.PostID = postID
	e.comments = append(e.comments, &CommentItem{Comment: draft, ClientRef: ref, Provisional: true, countSeq: e.commentSeq})
	e.item.CommentsCount++
	return true
}

func (s *FeedState) ConfirmComment(ref string, c feedevent.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertComment(c, ref, false)
}

func (s *FeedState) FailComment(postID, ref string, rollback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[postID]
	if !ok {
		return
	}
	i := findRef(e.comments, ref)
	if i < 0 {
		return
	}
	if !rollback {
		e.comments[i].LocalOnly = true
		return
	}
	e.dropProvisional(i)
}

// dropProvisional removes a provisional comment and takes back its optimistic
// +1, unless a committed count has replaced the count since.
func (e *entry) dropProvisional(i int) {
	c := e.comments[i]
	e.comments = append(e.comments[:i], e.comments[i+1:]...)
	if e.commentSeq == c.countSeq {
		e.item.CommentsCount = adjust(e.item.CommentsCount, false)
	}
}

// RemoveComment deletes a comment locally; repeated calls are no-ops.
func (s *FeedState) RemoveComment(postID, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeComment(postID, commentID, false)
}

func findRef(list []*CommentItem, ref string) int {
	if ref == "" {
		return -1
	}
	for i, c := range list {
		if c.Provisional && c.ClientRef == ref {
			return i
		}
	}
	return -1
}

func findComment(list []*CommentItem, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// commentCount applies the committed comment count an event carries when it
// is newer than the shown one. counted reports that the event carried a
// count, in which case the list merge must not adjust the count itself.
func (s *FeedState) commentCount(postID string, seq uint64, n *int64) (counted, changed bool) {
	if seq == 0 || n == nil {
		return false, false
	}
	e, ok := s.byID[postID]
	if !ok || seq <= e.commentSeq {
		return true, false
	}
	e.commentSeq = seq
	changed = e.item.CommentsCount != *n
	e.item.CommentsCount = *n
	return true, changed
}

func (s *FeedState) upsertComment(c feedevent.Comment, ref string, counted bool) bool {
	e, ok := s.byID[c.PostID]
	if !ok {
		return false
	}
	if _, gone := s.deletedComments[c.ID]; gone {
		return false
	}
	if findComment(e.comments, c.ID) >= 0 {
		if i := findRef(e.comments, ref); i >= 0 {
			e.dropProvisional(i)
		}
		return false
	}
	if i := findRef(e.comments, ref); i >= 0 {
		e.comments[i] = &CommentItem{Comment: c, ClientRef: ref}
		return true
	}
	e.comments = append(e.comments, &CommentItem{Comment: c, ClientRef: ref})
	if !counted {
		e.item.CommentsCount++
	}
	return true
}

func (s *FeedState) removeComment(postID, commentID string, counted bool) bool {
	if _, gone := s.deletedComments[commentID]; gone {
		return false
	}
	s.deletedComments[commentID] = struct{}{}
	e, ok := s.byID[postID]
	if !ok {
		return false
	}
	if i := findComment(e.comments, commentID); i >= 0 {
		e.comments = append(e.comments[:i], e.comments[i+1:]...)
	}
	if !counted {
		e.item.CommentsCount = adjust(e.item.CommentsCount, false)
	}
	return true
}

// ---- realtime ----

// Apply merges one realtime envelope and reports whether the list changed.
// Undecodable payloads are returned as errors and leave the state untouched.
func (s *FeedState) Apply(env feedevent.Envelope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if env.Seq > s.lastSeq {
		s.lastSeq = env.Seq
	}

	switch env.Event {
	case feedevent.PostCreated, feedevent.PostNew:
		var p feedevent.PostCreatedPayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		// 广播里的 isLiked 是作者视角，不可信
		p.Post.IsLiked = false
		return s.upsertPost(p.Post, p.ClientRef), nil
	case feedevent.PostDeleted:
		var p feedevent.PostDeletedPayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		return s.removePost(p.PostID), nil
	case feedevent.LikeUpdate:
		var p feedevent.LikeUpdatePayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		return s.applyLike(env.Seq, p), nil
	case feedevent.CommentAdded:
		var p feedevent.CommentAddedPayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		if p.Comment.PostID == "" {
			p.Comment.PostID = p.PostID
		}
		if p.Comment.ID == "" {
			p.Comment.ID = p.CommentID
		}
		counted, changed := s.commentCount(p.Comment.PostID, env.Seq, p.CommentsCount)
		return s.upsertComment(p.Comment, p.ClientRef, counted) || changed, nil
	case feedevent.CommentDeleted:
		var p feedevent.CommentDeletedPayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		counted, changed := s.commentCount(p.PostID, env.Seq, p.CommentsCount)
		return s.removeComment(p.PostID, p.CommentID, counted) || changed, nil
	case feedevent.ShareUpdate:
		var p feedevent.ShareUpdatePayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		return s.applyShare(env.Seq, p), nil
	case feedevent.UsersOnline:
		var p feedevent.UsersOnlinePayload
		if err := env.Decode(&p); err != nil {
			return false, err
		}
		s.online = p.Users
		return false, nil
	default:
		return false, nil
	}
}
