package repositories

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/threadline/backend/internal/apperrors"
	"github.com/anonto42/threadline/backend/internal/models"
)

func TestFeedFilter(t *testing.T) {
	excluded := []primitive.ObjectID{primitive.NewObjectID()}
	f := feedFilter(FeedQuery{ViewerID: 7, FriendIDs: []uint{3, 4}, ExcludedIDs: excluded})

	_, constrained := f["parent_id"]
	assert.False(t, constrained, "comments are feed candidates too")
	assert.Equal(t, bson.M{"$nin": excluded}, f["_id"])

	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 3)
	assert.Equal(t, bson.M{"author_id": uint(7)}, or[0])
	assert.Equal(t, bson.M{
		"author_id":  bson.M{"$in": []uint{3, 4}},
		"visibility": bson.M{"$in": bson.A{models.VisibilityPublic, models.VisibilityFollowersOnly}},
	}, or[1])
	assert.Equal(t, bson.M{"visibility": models.VisibilityPublic}, or[2])
}

func TestFeedFilter_NilSlicesBecomeEmptyArrays(t *testing.T) {
	f := feedFilter(FeedQuery{ViewerID: 1})

	assert.Equal(t, bson.M{"$nin": []primitive.ObjectID{}}, f["_id"])
	friends := f["$or"].(bson.A)[1].(bson.M)["author_id"].(bson.M)["$in"]
	assert.NotNil(t, friends)
	assert.Empty(t, friends)

	// must marshal; a null $in or $nin is rejected by the server
	_, err := bson.Marshal(f)
	require.NoError(t, err)
}

func TestReactionFields(t *testing.T) {
	set, counter := reactionFields(models.ReactionLike)
	assert.Equal(t, "reacted_by", set)
	assert.Equal(t, "reaction_num", counter)

	set, counter = reactionFields(models.ReactionRepost)
	assert.Equal(t, "reshared_by", set)
	assert.Equal(t, "shared_num", counter)
}

func TestRemoveReactorPipeline_FloorsCounter(t *testing.T) {
	p := removeReactorPipeline("reacted_by", "reaction_num", 5)
	require.Len(t, p, 1)
	require.Equal(t, "$set", p[0][0].Key)

	set := p[0][0].Value.(bson.D)
	require.Len(t, set, 2)
	assert.Equal(t, "reacted_by", set[0].Key)
	assert.Equal(t, "reaction_num", set[1].Key)

	floor := set[1].Value.(bson.D)[0]
	assert.Equal(t, "$max", floor.Key)
	assert.Equal(t, 0, floor.Value.(bson.A)[0])

	_, err := bson.Marshal(p[0])
	require.NoError(t, err)
}

func TestParseThreadID(t *testing.T) {
	id := primitive.NewObjectID()
	got, err := ParseThreadID(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseThreadID("not-an-id")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSearchFilter(t *testing.T) {
	f := searchFilter(SearchQuery{Text: "go (1.22)?", ViewerID: 7, FriendIDs: []uint{3}})

	assert.Equal(t, primitive.Regex{Pattern: `go \(1\.22\)\?`, Options: "i"}, f["content"])
	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"visibility": models.VisibilityPublic}, or[0])
	assert.Equal(t, bson.M{
		"author_id":  bson.M{"$in": []uint{3}},
		"visibility": models.VisibilityFollowersOnly,
	}, or[1])
}

func TestSearchFilter_LiteralTextMatches(t *testing.T) {
	f := searchFilter(SearchQuery{Text: "a.b*"})
	re := regexp.MustCompile("(?i)" + f["content"].(primitive.Regex).Pattern)

	assert.True(t, re.MatchString("see A.B* here"))
	assert.False(t, re.MatchString("aXbbb"))

	_, err := bson.Marshal(f)
	require.NoError(t, err)
}
