// Package enrollment joins users to the courses they follow and tracks their progress.
package enrollment

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
)

const CollectionID = "enrollments"

var (
	ErrNotFound       = errors.New("enrollment not found")
	ErrCourseNotOpen  = errors.New("course is not open for enrollment")
	ErrLessonNotFound = errors.New("lesson not found in course")
)

type Enrollment struct {
	ID               string    `json:"id"` // the course ID
	UserID           string    `json:"userId"`
	CourseID         string    `json:"courseId"`
	CourseTitle      string    `json:"courseTitle"`
	Progress         int       `json:"progress"`
	CompletedLessons []string  `json:"completedLessons"`
	EnrolledAt       time.Time `json:"enrolledAt"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
}

// Collection returns the path of a user's enrollments.
func Collection(userID string) string {
	return "users/" + userID + "/" + CollectionID
}

// Progress is the rounded percentage of completed lessons; 0 for a course without lessons.
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

type Service struct {
	db      core.DocumentStore
	courses *course.Service
}

func NewService(db core.DocumentStore, courses *course.Service) *Service {
	return &Service{db: db, courses: courses}
}

// Enroll is idempotent: enrolling twice returns the existing enrollment.
func (svc *Service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	if enr, err := svc.Get(ctx, userID, courseID); err == nil {
		return enr, nil
	} else if err != ErrNotFound {
		return Enrollment{}, err
	}

	c, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.IsPublished() {
		return Enrollment{}, ErrCourseNotOpen
	}

	now := core.NowFunc()
	enr := Enrollment{
		ID:               c.ID,
		UserID:           userID,
		CourseID:         c.ID,
		CourseTitle:      c.Title,
		CompletedLessons: []string{},
		EnrolledAt:       now,
		LastAccessedAt:   now,
	}
	data, err := core.EncodeDocument(enr)
	if err != nil {
		return Enrollment{}, err
	}
	if err := svc.db.Set(ctx, Collection(userID), enr.ID, data); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving enrollment")
	}
	return enr, nil
}

func (svc *Service) Get(ctx context.Context, userID, courseID string) (Enrollment, error) {
	if userID == "" || courseID == "" {
		return Enrollment{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, Collection(userID), courseID)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	var enr Enrollment
	return enr, doc.DataTo(&enr)
}

// IsEnrolled reports whether the user follows the course.
func (svc *Service) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	_, err := svc.Get(ctx, userID, courseID)
	switch err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	}
	return false, err
}

// ListForUser returns the user's enrollments, most recently accessed first.
func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Enrollment, error) {
	q := core.NewQuery(Collection(userID)).OrderBy(core.DBOrdering{Field: "lastAccessedAt"})
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return core.DecodeDocuments[Enrollment](docs)
}

// CourseIDs returns the IDs of the courses the user is enrolled in.
func (svc *Service) CourseIDs(ctx context.Context, userID string) ([]string, error) {
	enrs, err := svc.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(enrs))
	for _, enr := range enrs {
		ids = append(ids, enr.CourseID)
	}
	return ids, nil
}

// ListForCourse returns every enrollment of a course, across users.
func (svc *Service) ListForCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	q := core.NewGroupQuery(CollectionID).
		Where("courseId", core.OpEqual, courseID).
		OrderBy(core.DBOrdering{Field: "enrolledAt", Ascending: true})
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return core.DecodeDocuments[Enrollment](docs)
}

// ToggleLesson marks a lesson complete or incomplete and recomputes the progress
// against the current lesson count of the course.
func (svc *Service) ToggleLesson(ctx context.Context, userID, courseID, lessonID string, complete bool) (Enrollment, error) {
	enr, err := svc.Get(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	c, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.HasLesson(lessonID) {
		return Enrollment{}, ErrLessonNotFound
	}

	completed := make([]string, 0, len(enr.CompletedLessons)+1)
	for _, id := range enr.CompletedLessons {
		// lessons removed from the course since are dropped
		if id != lessonID && c.HasLesson(id) {
			completed = append(completed, id)
		}
	}
	if complete {
		completed = append(completed, lessonID)
	}

	enr.CompletedLessons = completed
	enr.Progress = Progress(len(completed), c.TotalLessons())
	enr.LastAccessedAt = core.NowFunc()

	data, err := core.NormalizeData(map[string]interface{}{
		"completedLessons": enr.CompletedLessons,
		"progress":         enr.Progress,
		"lastAccessedAt":   enr.LastAccessedAt,
	})
	if err != nil {
		return Enrollment{}, err
	}
	if err := svc.db.Update(ctx, Collection(userID), courseID, data); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return enr, nil
}

func (svc *Service) Unenroll(ctx context.Context, userID, courseID string) error {
	if _, err := svc.Get(ctx, userID, courseID); err != nil {
		return err
	}
	return errors.Wrap(svc.db.Delete(ctx, Collection(userID), courseID), "deleting enrollment")
}
