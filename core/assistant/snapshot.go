package assistant

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

const snapshotCourses = 50

// counted collections, by snapshot name
var snapshotCounts = map[string]string{
	"users":         user.Collection,
	"courses":       course.Collection,
	"assignments":   coursework.KindAssignment,
	"exams":         coursework.KindExam,
	"projects":      coursework.KindProject,
	"messages":      message.KindMessage,
	"notifications": message.KindNotification,
}

// StoreSnapshot reads the snapshot from the document store.
type StoreSnapshot struct {
	db      core.DocumentStore
	courses *course.Service
}

var _ Snapshotter = (*StoreSnapshot)(nil)

func NewStoreSnapshot(db core.DocumentStore, courses *course.Service) *StoreSnapshot {
	return &StoreSnapshot{db: db, courses: courses}
}

func (ss *StoreSnapshot) Snapshot(ctx context.Context) (ai.Snapshot, error) {
	summaries, err := ss.courses.Summaries(ctx, snapshotCourses)
	if err != nil {
		return ai.Snapshot{}, err
	}
	snap := ai.Snapshot{
		Courses: make([]ai.SnapshotCourse, 0, len(summaries)),
		Counts:  make(map[string]int, len(snapshotCounts)),
	}
	for _, s := range summaries {
		snap.Courses = append(snap.Courses, ai.SnapshotCourse{ID: s.ID, Title: s.Title, Status: s.Status})
	}
	for name, coll := range snapshotCounts {
		docs, err := ss.db.Query(ctx, core.NewQuery(coll))
		if err != nil {
			return ai.Snapshot{}, errors.Wrapf(err, "counting %s", name)
		}
		snap.Counts[name] = len(docs)
	}
	return snap, nil
}
