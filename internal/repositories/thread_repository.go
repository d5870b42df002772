package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
)

const maxToggleAttempts = 3

// FeedQuery selects one page of feed candidates for ViewerID.
type FeedQuery struct {
	ViewerID    uint
	FriendIDs   []uint
	ExcludedIDs []primitive.ObjectID
	Limit       int64
}

// SearchQuery matches thread content for ViewerID. Text is a literal,
// case-insensitive substring.
type SearchQuery struct {
	Text      string
	ViewerID  uint
	FriendIDs []uint
	Limit     int64
}

// ThreadRepository defines the interface for thread data operations
type ThreadRepository interface {
	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThreadByID(ctx context.Context, id string) (*models.Thread, error)
	UpdateThread(ctx context.Context, thread *models.Thread) error
	DeleteThread(ctx context.Context, id primitive.ObjectID) error
	ReparentChildren(ctx context.Context, parentID primitive.ObjectID) (int64, error)
	ToggleReactor(ctx context.Context, id primitive.ObjectID, kind models.ReactionKind, userID uint) (*models.Thread, bool, error)
	QueryFeed(ctx context.Context, q FeedQuery) ([]models.Thread, error)
	Search(ctx context.Context, q SearchQuery) ([]models.Thread, error)
	CountComments(ctx context.Context, parentIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
	ListComments(ctx context.Context, parentID primitive.ObjectID) ([]models.Thread, error)
	ListByAuthor(ctx context.Context, authorID uint, limit int64) ([]models.Thread, error)
	ListResharedBy(ctx context.Context, userID uint, limit int64) ([]models.Thread, error)
	ListWithoutEmbedding(ctx context.Context, limit int64) ([]models.Thread, error)
	SetEmbedding(ctx context.Context, id primitive.ObjectID, embedding []float64) error
}

// MongoThreadRepository implements ThreadRepository for MongoDB
type MongoThreadRepository struct {
	collection *mongo.Collection
}

// NewMongoThreadRepository creates a new MongoThreadRepository
func NewMongoThreadRepository(db *mongo.Database) *MongoThreadRepository {
	return &MongoThreadRepository{collection: db.Collection("threads")}
}

// EnsureIndexes creates the indexes the feed and listing queries rely on.
func (r *MongoThreadRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		{Keys: bson.D{{Key: "reshared_by", Value: 1}}},
	})
	return err
}

// CreateThread creates a new thread in MongoDB
func (r *MongoThreadRepository) CreateThread(ctx context.Context, thread *models.Thread) error {
	if thread.ID.IsZero() {
		thread.ID = primitive.NewObjectID()
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	if thread.UpdatedAt.IsZero() {
		thread.UpdatedAt = thread.CreatedAt
	}
	// reactor sets must be arrays for $addToSet
	if thread.ReactedBy == nil {
		thread.ReactedBy = []uint{}
	}
	if thread.ResharedBy == nil {
		thread.ResharedBy = []uint{}
	}
	if thread.Media == nil {
		thread.Media = []models.Media{}
	}
	_, err := r.collection.InsertOne(ctx, thread)
	return err
}

// GetThreadByID retrieves a thread by its hex ID
func (r *MongoThreadRepository) GetThreadByID(ctx context.Context, id string) (*models.Thread, error) {
	objID, err := ParseThreadID(id)
	if err != nil {
		return nil, err
	}
	return r.findByObjectID(ctx, objID)
}

func (r *MongoThreadRepository) findByObjectID(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	var thread models.Thread
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("thread %s: %w", id.Hex(), apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &thread, nil
}

// ParseThreadID decodes a hex thread id.
func ParseThreadID(id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid thread ID %q: %w", id, apperrors.ErrInvalidArgument)
	}
	return objID, nil
}

// UpdateThread writes the editable fields of thread
func (r *MongoThreadRepository) UpdateThread(ctx context.Context, thread *models.Thread) error {
	update := bson.M{
		"$set": bson.M{
			"content":    thread.Content,
			"visibility": thread.Visibility,
			"media":      thread.Media,
			"embedding":  thread.Embedding,
			"updated_at": thread.UpdatedAt,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": thread.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("thread %s: %w", thread.ID.Hex(), apperrors.ErrNotFound)
	}
	return nil
}

// DeleteThread deletes a thread by ID from MongoDB
func (r *MongoThreadRepository) DeleteThread(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("thread %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return nil
}

// ReparentChildren detaches the comments of parentID, turning them into
// top-level threads.
func (r *MongoThreadRepository) ReparentChildren(ctx context.Context, parentID primitive.ObjectID) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"parent_id": parentID},
		bson.M{"$set": bson.M{"parent_id": nil}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ToggleReactor flips userID's membership in the reactor set for kind and
// moves the matching counter with it. It reports whether the user is a
// reactor afterwards.
//
// Each attempt is a conditional single-document update, so racing toggles
// from the same user each flip the state exactly once and the counter always
// tracks the set.
func (r *MongoThreadRepository) ToggleReactor(ctx context.Context, id primitive.ObjectID, kind models.ReactionKind, userID uint) (*models.Thread, bool, error) {
	set, counter := reactionFields(kind)
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		var thread models.Thread
		err := r.collection.FindOneAndUpdate(ctx,
			bson.M{"_id": id, set: userID},
			removeReactorPipeline(set, counter, userID),
			after,
		).Decode(&thread)
		if err == nil {
			return &thread, false, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, err
		}

		err = r.collection.FindOneAndUpdate(ctx,
			bson.M{"_id": id, set: bson.M{"$ne": userID}},
			bson.M{"$addToSet": bson.M{set: userID}, "$inc": bson.M{counter: 1}},
			after,
		).Decode(&thread)
		if err == nil {
			return &thread, true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, err
		}

		// neither guard matched: the thread is gone or another toggle won
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return nil, false, err
		}
		if n == 0 {
			return nil, false, fmt.Errorf("thread %s: %w", id.Hex(), apperrors.ErrNotFound)
		}
	}
	return nil, false, fmt.Errorf("toggle %s on thread %s: state kept changing under concurrent toggles", kind, id.Hex())
}

func reactionFields(kind models.ReactionKind) (set, counter string) {
	if kind == models.ReactionRepost {
		return "reshared_by", "shared_num"
	}
	return "reacted_by", "reaction_num"
}

// removeReactorPipeline drops userID from set and decrements counter,
// flooring it at zero.
func removeReactorPipeline(set, counter string, userID uint) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: set, Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$" + set},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", userID}}}},
			}}}},
			{Key: counter, Value: bson.D{{Key: "$max", Value: bson.A{
				0,
				bson.D{{Key: "$subtract", Value: bson.A{"$" + counter, 1}}},
			}}}},
		}}},
	}
}

// feedFilter selects threads and comments visible to the viewer that are not
// in the exclusion cursor: the viewer's own, PUBLIC and FOLLOWERS_ONLY ones of
// followed authors, and PUBLIC ones of anyone.
func feedFilter(q FeedQuery) bson.M {
	friends := q.FriendIDs
	if friends == nil {
		friends = []uint{}
	}
	excluded := q.ExcludedIDs
	if excluded == nil {
		excluded = []primitive.ObjectID{}
	}
	return bson.M{
		"_id": bson.M{"$nin": excluded},
		"$or": bson.A{
			bson.M{"author_id": q.ViewerID},
			bson.M{
				"author_id":  bson.M{"$in": friends},
				"visibility": bson.M{"$in": bson.A{models.VisibilityPublic, models.VisibilityFollowersOnly}},
			},
			bson.M{"visibility": models.VisibilityPublic},
		},
	}
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// QueryFeed returns feed candidates newest first
func (r *MongoThreadRepository) QueryFeed(ctx context.Context, q FeedQuery) ([]models.Thread, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(q.Limit)
	return r.find(ctx, feedFilter(q), opts)
}

// searchFilter matches content against the literal text among PUBLIC threads
// and FOLLOWERS_ONLY threads of followed authors.
func searchFilter(q SearchQuery) bson.M {
	friends := q.FriendIDs
	if friends == nil {
		friends = []uint{}
	}
	return bson.M{
		"content": primitive.Regex{Pattern: regexp.QuoteMeta(q.Text), Options: "i"},
		"$or": bson.A{
			bson.M{"visibility": models.VisibilityPublic},
			bson.M{
				"author_id":  bson.M{"$in": friends},
				"visibility": models.VisibilityFollowersOnly,
			},
		},
	}
}

// Search returns threads whose content contains q.Text, newest first
func (r *MongoThreadRepository) Search(ctx context.Context, q SearchQuery) ([]models.Thread, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(q.Limit)
	return r.find(ctx, searchFilter(q), opts)
}

// CountComments counts the direct comments of each parent
func (r *MongoThreadRepository) CountComments(ctx context.Context, parentIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	counts := make(map[primitive.ObjectID]int64, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts, nil
	}
	cursor, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"parent_id": bson.M{"$in": parentIDs}}}},
		{{Key: "$group", Value: bson.M{"_id": "$parent_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
		N  int64              `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ID] = row.N
	}
	return counts, nil
}

// ListComments returns the direct comments of a thread, oldest first
func (r *MongoThreadRepository) ListComments(ctx context.Context, parentID primitive.ObjectID) ([]models.Thread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"parent_id": parentID}, opts)
}

// ListByAuthor returns the top-level threads of an author, newest first
func (r *MongoThreadRepository) ListByAuthor(ctx context.Context, authorID uint, limit int64) ([]models.Thread, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(limit)
	return r.find(ctx, bson.M{"author_id": authorID, "parent_id": nil}, opts)
}

// ListResharedBy returns the threads a user reshared, newest first
func (r *MongoThreadRepository) ListResharedBy(ctx context.Context, userID uint, limit int64) ([]models.Thread, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(limit)
	return r.find(ctx, bson.M{"reshared_by": userID}, opts)
}

// ListWithoutEmbedding returns threads whose embedding was never computed
func (r *MongoThreadRepository) ListWithoutEmbedding(ctx context.Context, limit int64) ([]models.Thread, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"embedding": bson.M{"$exists": false}},
		bson.M{"embedding": nil},
		bson.M{"embedding": bson.M{"$size": 0}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(limit)
	return r.find(ctx, filter, opts)
}

// SetEmbedding stores a computed embedding without touching updated_at
func (r *MongoThreadRepository) SetEmbedding(ctx context.Context, id primitive.ObjectID, embedding []float64) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"embedding": embedding}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("thread %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return nil
}

func (r *MongoThreadRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Thread, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	threads := []models.Thread{}
	if err = cursor.All(ctx, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}
