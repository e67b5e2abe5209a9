package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/codexlms/codex/core"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name  string
		query core.Query
		want  bson.D
	}{
		{
			name:  "collection",
			query: core.NewQuery("users/u1/enrollments"),
			want:  bson.D{{Key: "collection", Value: "users/u1/enrollments"}},
		},
		{
			name:  "group with a range on one field",
			query: core.NewGroupQuery("submissions").Where("grade", core.OpGreaterOrEqual, 50).Where("grade", core.OpLess, 80.5),
			want: bson.D{
				{Key: "groupId", Value: "submissions"},
				{Key: "data.grade", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$gte", Value: float64(50)}, {Key: "$lt", Value: 80.5}}},
			},
		},
		{
			name:  "in and array contains",
			query: core.NewQuery("courses").Where("status", core.OpIn, []interface{}{"draft", "published"}).Where("tags", core.OpArrayContains, "go"),
			want: bson.D{
				{Key: "collection", Value: "courses"},
				{Key: "data.status", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$in", Value: []interface{}{"draft", "published"}}}},
				{Key: "data.tags", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: "go"}}}}},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildFilter(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := buildFilter(core.NewQuery("courses").Where("status", core.OpIn, "draft"))
	assert.Error(t, err)
}

func TestFindOptions(t *testing.T) {
	opts := findOptions(core.NewQuery("courses").OrderBy(core.DBOrdering{Field: "title", Ascending: true}, core.DBOrdering{Field: "createdAt"}).WithLimit(3))
	assert.Equal(t, bson.D{{Key: "data.title", Value: 1}, {Key: "data.createdAt", Value: -1}, {Key: "_id", Value: 1}}, opts.Sort)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(3), *opts.Limit)
}

func TestPathCollection(t *testing.T) {
	assert.Equal(t, "users/u1/enrollments", pathCollection("users/u1/enrollments/c1"))
	assert.Equal(t, "courses", pathCollection("courses/c1"))
	assert.Equal(t, "", pathCollection("c1"))
}
