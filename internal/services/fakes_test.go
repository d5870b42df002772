package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/internal/vector"
)

// ---- threads ----

type fakeThreads struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*models.Thread
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{byID: make(map[primitive.ObjectID]*models.Thread)}
}

func cloneThread(t *models.Thread) *models.Thread {
	c := *t
	c.ReactedBy = append([]uint{}, t.ReactedBy...)
	c.ResharedBy = append([]uint{}, t.ResharedBy...)
	c.Embedding = append([]float64(nil), t.Embedding...)
	c.Media = append([]models.Media{}, t.Media...)
	return &c
}

func (f *fakeThreads) put(t models.Thread) *models.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	f.byID[t.ID] = cloneThread(&t)
	return cloneThread(&t)
}

func (f *fakeThreads) get(id primitive.ObjectID) *models.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.byID[id]; ok {
		return cloneThread(t)
	}
	return nil
}

func (f *fakeThreads) CreateThread(_ context.Context, t *models.Thread) error {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	f.put(*t)
	return nil
}

func (f *fakeThreads) GetThreadByID(_ context.Context, id string) (*models.Thread, error) {
	oid, err := repositories.ParseThreadID(id)
	if err != nil {
		return nil, err
	}
	if t := f.get(oid); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("thread %s: %w", id, apperrors.ErrNotFound)
}

func (f *fakeThreads) UpdateThread(_ context.Context, t *models.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.byID[t.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	cur.Content, cur.Visibility, cur.Media = t.Content, t.Visibility, t.Media
	cur.Embedding, cur.UpdatedAt = t.Embedding, t.UpdatedAt
	return nil
}

func (f *fakeThreads) DeleteThread(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeThreads) ReparentChildren(_ context.Context, parentID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.byID {
		if t.ParentID != nil && *t.ParentID == parentID {
			t.ParentID = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeThreads) ToggleReactor(_ context.Context, id primitive.ObjectID, kind models.ReactionKind, userID uint) (*models.Thread, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, false, fmt.Errorf("thread %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	set, counter := &t.ReactedBy, &t.ReactionNum
	if kind == models.ReactionRepost {
		set, counter = &t.ResharedBy, &t.SharedNum
	}
	for i, u := range *set {
		if u == userID {
			*set = append((*set)[:i], (*set)[i+1:]...)
			if *counter > 0 {
				*counter--
			}
			return cloneThread(t), false, nil
		}
	}
	*set = append(*set, userID)
	*counter++
	return cloneThread(t), true, nil
}

func newestFirst(list []models.Thread) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return bytes.Compare(list[i].ID[:], list[j].ID[:]) > 0
	})
}

func (f *fakeThreads) filter(keep func(t *models.Thread) bool) []models.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Thread{}
	for _, t := range f.byID {
		if keep(t) {
			out = append(out, *cloneThread(t))
		}
	}
	newestFirst(out)
	return out
}

func limitThreads(list []models.Thread, limit int64) []models.Thread {
	if limit > 0 && int64(len(list)) > limit {
		return list[:limit]
	}
	return list
}

func (f *fakeThreads) QueryFeed(_ context.Context, q repositories.FeedQuery) ([]models.Thread, error) {
	friends := map[uint]bool{}
	for _, id := range q.FriendIDs {
		friends[id] = true
	}
	excluded := map[primitive.ObjectID]bool{}
	for _, id := range q.ExcludedIDs {
		excluded[id] = true
	}
	list := f.filter(func(t *models.Thread) bool {
		return !excluded[t.ID] && t.VisibleTo(q.ViewerID, friends[t.AuthorID])
	})
	return limitThreads(list, q.Limit), nil
}

func (f *fakeThreads) Search(_ context.Context, q repositories.SearchQuery) ([]models.Thread, error) {
	friends := map[uint]bool{}
	for _, id := range q.FriendIDs {
		friends[id] = true
	}
	text := strings.ToLower(q.Text)
	list := f.filter(func(t *models.Thread) bool {
		if !strings.Contains(strings.ToLower(t.Content), text) {
			return false
		}
		return t.Visibility == models.VisibilityPublic ||
			(t.Visibility == models.VisibilityFollowersOnly && friends[t.AuthorID])
	})
	return limitThreads(list, q.Limit), nil
}

func (f *fakeThreads) CountComments(_ context.Context, parentIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[primitive.ObjectID]bool{}
	for _, id := range parentIDs {
		want[id] = true
	}
	out := map[primitive.ObjectID]int64{}
	for _, t := range f.byID {
		if t.ParentID != nil && want[*t.ParentID] {
			out[*t.ParentID]++
		}
	}
	return out, nil
}

func (f *fakeThreads) ListComments(_ context.Context, parentID primitive.ObjectID) ([]models.Thread, error) {
	list := f.filter(func(t *models.Thread) bool { return t.ParentID != nil && *t.ParentID == parentID })
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (f *fakeThreads) ListByAuthor(_ context.Context, authorID uint, limit int64) ([]models.Thread, error) {
	return limitThreads(f.filter(func(t *models.Thread) bool {
		return t.AuthorID == authorID && t.ParentID == nil
	}), limit), nil
}

func (f *fakeThreads) ListResharedBy(_ context.Context, userID uint, limit int64) ([]models.Thread, error) {
	return limitThreads(f.filter(func(t *models.Thread) bool {
		return t.HasReactor(models.ReactionRepost, userID)
	}), limit), nil
}

func (f *fakeThreads) ListWithoutEmbedding(_ context.Context, limit int64) ([]models.Thread, error) {
	return limitThreads(f.filter(func(t *models.Thread) bool { return len(t.Embedding) == 0 }), limit), nil
}

func (f *fakeThreads) SetEmbedding(_ context.Context, id primitive.ObjectID, embedding []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.Embedding = embedding
	return nil
}

// ---- users ----

type fakeUsers struct {
	mu          sync.Mutex
	byID        map[uint]*models.User
	nextID      uint
	interestErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uint]*models.User)}
}

func (f *fakeUsers) add(username string) *models.User {
	u := &models.User{Username: username, Name: strings.ToUpper(username[:1]) + username[1:], Email: username + "@example.com"}
	_ = f.CreateUser(context.Background(), u)
	return u
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	c := *u
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
}

func (f *fakeUsers) GetUserByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.FirebaseUID != nil && *u.FirebaseUID == uid {
			c := *u
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeUsers) GetUsersByIDs(_ context.Context, ids []uint) (map[uint]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uint]models.User{}
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id uint, req models.UpdateUserRequest) (*models.User, error) {
	f.mu.Lock()
	u, ok := f.byID[id]
	if ok && req.Name != "" {
		u.Name = req.Name
	}
	f.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return f.GetUserByID(ctx, id)
}

func (f *fakeUsers) UpdateInterest(_ context.Context, id uint, interest vector.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.interestErr != nil {
		return f.interestErr
	}
	u, ok := f.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	return u.SetInterest(interest)
}

func (f *fakeUsers) SearchUsers(_ context.Context, query string, _ int) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.byID {
		if strings.Contains(u.Username, query) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) interest(id uint) vector.Vector {
	u, _ := f.GetUserByID(context.Background(), id)
	return u.Interest()
}

// ---- follows ----

type fakeFollows struct {
	mu    sync.Mutex
	users *fakeUsers
	edges [][2]uint
}

func newFakeFollows(users *fakeUsers) *fakeFollows {
	return &fakeFollows{users: users}
}

func (f *fakeFollows) index(follower, following uint) int {
	for i, e := range f.edges {
		if e[0] == follower && e[1] == following {
			return i
		}
	}
	return -1
}

func (f *fakeFollows) adjust(follower, following uint, delta int) {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	a, b := f.users.byID[follower], f.users.byID[following]
	a.FollowingCount += delta
	b.FollowersCount += delta
	if a.FollowingCount < 0 {
		a.FollowingCount = 0
	}
	if b.FollowersCount < 0 {
		b.FollowersCount = 0
	}
}

func (f *fakeFollows) Toggle(_ context.Context, follower, following uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(follower, following); i >= 0 {
		f.edges = append(f.edges[:i], f.edges[i+1:]...)
		f.adjust(follower, following, -1)
		return false, nil
	}
	f.edges = append(f.edges, [2]uint{follower, following})
	f.adjust(follower, following, 1)
	return true, nil
}

func (f *fakeFollows) Remove(_ context.Context, follower, following uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(follower, following)
	if i < 0 {
		return false, nil
	}
	f.edges = append(f.edges[:i], f.edges[i+1:]...)
	f.adjust(follower, following, -1)
	return true, nil
}

func (f *fakeFollows) IsFollowing(_ context.Context, follower, following uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index(follower, following) >= 0, nil
}

func (f *fakeFollows) collect(match func(e [2]uint) (uint, bool)) []models.User {
	f.mu.Lock()
	var ids []uint
	for i := len(f.edges) - 1; i >= 0; i-- {
		if id, ok := match(f.edges[i]); ok {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		u, _ := f.users.GetUserByID(context.Background(), id)
		out = append(out, *u)
	}
	return out
}

func (f *fakeFollows) GetFollowers(_ context.Context, userID uint) ([]models.User, error) {
	return f.collect(func(e [2]uint) (uint, bool) { return e[0], e[1] == userID }), nil
}

func (f *fakeFollows) GetFollowing(_ context.Context, userID uint) ([]models.User, error) {
	return f.collect(func(e [2]uint) (uint, bool) { return e[1], e[0] == userID }), nil
}

func (f *fakeFollows) GetFollowingIDs(_ context.Context, userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []uint{}
	for _, e := range f.edges {
		if e[0] == userID {
			ids = append(ids, e[1])
		}
	}
	return ids, nil
}

// ---- notifications ----

type fakeNotifications struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	rows   []*models.Notification
	nextID uint
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{}
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	c.ActorIDs = append([]byte(nil), n.ActorIDs...)
	return &c
}

func (f *fakeNotifications) Transaction(ctx context.Context, fn func(tx repositories.NotificationRepository) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snapshot := make([]*models.Notification, len(f.rows))
	for i, n := range f.rows {
		snapshot[i] = cloneNotification(n)
	}
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.rows = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeNotifications) FindForUpdate(_ context.Context, q repositories.AggregateQuery) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Notification
	for _, n := range f.rows {
		if n.ReceiverID != q.ReceiverID || n.Kind != q.Kind {
			continue
		}
		if (q.SubjectID == nil) != (n.SubjectID == nil) {
			continue
		}
		if q.SubjectID != nil && *q.SubjectID != *n.SubjectID {
			continue
		}
		if q.ActorID != 0 && n.ActorID != q.ActorID {
			continue
		}
		if !q.UpdatedAfter.IsZero() && !n.UpdatedAt.After(q.UpdatedAfter) {
			continue
		}
		if best == nil || n.UpdatedAt.After(best.UpdatedAt) || (n.UpdatedAt.Equal(best.UpdatedAt) && n.ID > best.ID) {
			best = n
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneNotification(best), nil
}

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	f.rows = append(f.rows, cloneNotification(n))
	return nil
}

func (f *fakeNotifications) Save(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.rows {
		if cur.ID == n.ID {
			f.rows[i] = cloneNotification(n)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (f *fakeNotifications) GetByID(_ context.Context, id uint) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.ID == id {
			return cloneNotification(n), nil
		}
	}
	return nil, fmt.Errorf("notification %d: %w", id, apperrors.ErrNotFound)
}

func (f *fakeNotifications) GetByIDs(_ context.Context, ids []uint) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[uint]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Notification
	for _, n := range f.rows {
		if want[n.ID] {
			out = append(out, *cloneNotification(n))
		}
	}
	return out, nil
}

func (f *fakeNotifications) receiverRows(receiverID uint) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.rows {
		if n.ReceiverID == receiverID {
			out = append(out, *cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeNotifications) GetByReceiverID(_ context.Context, receiverID uint, page, limit int) ([]models.Notification, int64, error) {
	rows := f.receiverRows(receiverID)
	total := int64(len(rows))
	start := (page - 1) * limit
	if start >= len(rows) {
		return []models.Notification{}, total, nil
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], total, nil
}

func (f *fakeNotifications) GetUnreadCount(_ context.Context, receiverID uint) (int64, error) {
	var n int64
	for _, row := range f.receiverRows(receiverID) {
		if !row.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, receiverID uint, ids []uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[uint]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for _, row := range f.rows {
		if row.ReceiverID == receiverID && want[row.ID] {
			row.IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) MarkAllAsRead(_ context.Context, receiverID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, row := range f.rows {
		if row.ReceiverID == receiverID && !row.IsRead {
			row.IsRead = true
			n++
		}
	}
	return n, nil
}

// ---- live delivery ----

type pushed struct {
	userID  uint
	payload interface{}
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes []pushed
	err    error
}

func (p *recordingPusher) Push(_ context.Context, userID uint, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, pushed{userID: userID, payload: payload})
	return p.err
}

func (p *recordingPusher) to(userID uint) []models.NotificationSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.NotificationSummary
	for _, push := range p.pushes {
		if push.userID != userID {
			continue
		}
		if ev, ok := push.payload.(models.LiveEvent); ok {
			out = append(out, ev.Data.(models.NotificationSummary))
		}
	}
	return out
}

// ---- embeddings ----

type stubEmbedder struct {
	mu    sync.Mutex
	byKey map[string]vector.Vector
	err   error
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) (vector.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.byKey[text], nil
}

// ---- wiring ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	users         *fakeUsers
	follows       *fakeFollows
	threads       *fakeThreads
	notifications *fakeNotifications
	pusher        *recordingPusher
	embedder      *stubEmbedder
	clock         *fakeClock

	interest  *InterestService
	notifier  *NotificationService
	reactions *ReactionService
	feed      *FeedService
	graph     *GraphService
	thread    *ThreadService
}

func newTestEnv(scorer Scorer) *testEnv {
	env := &testEnv{
		users:         newFakeUsers(),
		threads:       newFakeThreads(),
		notifications: newFakeNotifications(),
		pusher:        &recordingPusher{},
		embedder:      &stubEmbedder{byKey: map[string]vector.Vector{}},
		clock:         newFakeClock(),
	}
	env.follows = newFakeFollows(env.users)
	rates := DefaultLearningRates()

	env.interest = NewInterestService(env.users)
	env.notifier = NewNotificationService(env.notifications, env.users, env.threads, env.pusher, DefaultFollowCooldown)
	env.notifier.now = env.clock.Now
	env.reactions = NewReactionService(env.threads, env.users, env.follows, env.interest, env.notifier, rates)
	env.feed = NewFeedService(env.threads, env.users, env.follows, scorer, DefaultFeedPageSize)
	env.graph = NewGraphService(env.users, env.follows, env.notifier)
	env.thread = NewThreadService(env.threads, env.users, env.follows, env.embedder, env.interest, env.notifier, rates)
	env.thread.now = env.clock.Now
	return env
}

func (env *testEnv) post(author uint, visibility models.Visibility, embedding vector.Vector) *models.Thread {
	env.clock.Advance(time.Second)
	return env.threads.put(models.Thread{
		AuthorID:   author,
		Content:    fmt.Sprintf("post by %d at %s", author, env.clock.Now().Format(time.RFC3339)),
		Visibility: visibility,
		Embedding:  embedding,
		CreatedAt:  env.clock.Now(),
		UpdatedAt:  env.clock.Now(),
	})
}
