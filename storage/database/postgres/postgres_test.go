package postgresdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
)

func TestBuildQuery(t *testing.T) {
	since := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		query    core.Query
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "collection",
			query:    core.NewQuery("courses"),
			wantSQL:  "SELECT collection, id, data FROM documents WHERE collection = $1 ORDER BY collection, id",
			wantArgs: []interface{}{"courses"},
		},
		{
			name:  "group with filters",
			query: core.NewGroupQuery("submissions").Where("userId", core.OpEqual, "u1").Where("status", core.OpNotEqual, "Graded"),
			wantSQL: "SELECT collection, id, data FROM documents WHERE group_id = $1" +
				" AND data -> $2 = $3::jsonb" +
				" AND data -> $4 IS NOT NULL AND data -> $4 <> $5::jsonb" +
				" ORDER BY collection, id",
			wantArgs: []interface{}{"submissions", "userId", `"u1"`, "status", `"Graded"`},
		},
		{
			name:  "range, in and ordering",
			query: core.NewQuery("messages").Where("createdAt", core.OpGreaterOrEqual, since).Where("targetId", core.OpIn, []interface{}{"c1", "c2"}).OrderBy(core.DBOrdering{Field: "createdAt"}).WithLimit(5),
			wantSQL: "SELECT collection, id, data FROM documents WHERE collection = $1" +
				" AND jsonb_typeof(data -> $2) = jsonb_typeof($3::jsonb) AND data -> $2 >= $3::jsonb" +
				" AND data -> $4 IN ($5::jsonb, $6::jsonb)" +
				" ORDER BY data -> $7 DESC NULLS LAST, collection, id LIMIT $8",
			wantArgs: []interface{}{"messages", "createdAt", `"2024-03-01T08:00:00.000000000Z"`, "targetId", `"c1"`, `"c2"`, "createdAt", 5},
		},
		{
			name:  "array contains and empty in",
			query: core.NewQuery("courses").Where("tags", core.OpArrayContains, "go").Where("id", core.OpIn, []interface{}{}).OrderBy(core.DBOrdering{Field: "title", Ascending: true}),
			wantSQL: "SELECT collection, id, data FROM documents WHERE collection = $1" +
				" AND jsonb_typeof(data -> $2) = 'array' AND data -> $2 @> $3::jsonb" +
				" AND FALSE" +
				" ORDER BY data -> $5 ASC NULLS FIRST, collection, id",
			wantArgs: []interface{}{"courses", "tags", `["go"]`, "id", "title"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stmt, args, err := buildQuery(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, stmt)
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}

func TestBuildQuery_Errors(t *testing.T) {
	_, _, err := buildQuery(core.NewQuery("users/u1"))
	assert.Equal(t, core.ErrInvalidPath, err)

	_, _, err = buildQuery(core.NewQuery("users").Where("name", "like", "a"))
	assert.Error(t, err)

	_, _, err = buildQuery(core.NewQuery("users").Where("id", core.OpIn, "u1"))
	assert.Error(t, err)
}
