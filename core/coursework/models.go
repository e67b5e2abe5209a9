package coursework

import (
	"strconv"
	"time"

	"github.com/codexlms/codex/core"
)

// Kinds of coursework, also used as their collection names.
const (
	KindAssignment = "assignments"
	KindExam       = "exams"
	KindProject    = "projects"
)

// SubmissionsCollectionID is the ID of every submissions sub-collection.
const SubmissionsCollectionID = "submissions"

// Submission statuses
const (
	StatusPending = "Pending"
	StatusGraded  = "Graded"
)

var Kinds = []string{KindAssignment, KindExam, KindProject}

type (
	Question struct {
		Prompt      string   `json:"prompt"`
		Options     []string `json:"options"`
		AnswerIndex int      `json:"answerIndex"`
		Points      float64  `json:"points"`
	}

	// Work is an assignment, an exam or a project; which fields are meaningful depends on Kind.
	Work struct {
		ID              string     `json:"id"`
		Kind            string     `json:"kind"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		CourseID        string     `json:"courseId"`
		DueDate         *time.Time `json:"dueDate"`
		MaxGrade        float64    `json:"maxGrade"`
		DurationMinutes int        `json:"durationMinutes"`
		PassingScore    float64    `json:"passingScore"`
		Questions       []Question `json:"questions"`
		Requirements    []string   `json:"requirements"`
		CreatedBy       string     `json:"createdBy"`
		CreatedAt       time.Time  `json:"createdAt"`
		UpdatedAt       time.Time  `json:"updatedAt"`
	}

	Submission struct {
		ID          string     `json:"id"`
		UserID      string     `json:"userId"`
		Kind        string     `json:"kind"`
		ParentID    string     `json:"parentId"`
		CourseID    string     `json:"courseId"`
		ColabLink   string     `json:"colabLink"`
		Answers     []int      `json:"answers"`
		Content     string     `json:"content"`
		Status      string     `json:"status"`
		Grade       *float64   `json:"grade"`
		Feedback    string     `json:"feedback"`
		GradedBy    string     `json:"gradedBy"`
		SubmittedAt time.Time  `json:"submittedAt"`
		GradedAt    *time.Time `json:"gradedAt"`
	}
)

func (w Work) IsExam() bool { return w.Kind == KindExam }

// maxScore is the score of a perfect exam.
func (w Work) maxScore() float64 {
	var total float64
	for _, q := range w.Questions {
		total += q.points()
	}
	return total
}

func (q Question) points() float64 {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Score computes the percentage (0..100) of points earned by answers.
func (w Work) Score(answers []int) float64 {
	max := w.maxScore()
	if max == 0 {
		return 0
	}
	var earned float64
	for i, q := range w.Questions {
		if i < len(answers) && answers[i] == q.AnswerIndex {
			earned += q.points()
		}
	}
	return float64(int(earned/max*10000+0.5)) / 100
}

// Blank returns the work without the answers of its questions.
func (w Work) Blank() Work {
	questions := make([]Question, 0, len(w.Questions))
	for _, q := range w.Questions {
		q.AnswerIndex = -1
		questions = append(questions, q)
	}
	w.Questions = questions
	return w
}

func (s Submission) IsGraded() bool { return s.Status == StatusGraded && s.Grade != nil }

// SubmissionsCollection returns the path of the submissions of a piece of coursework.
func SubmissionsCollection(kind, parentID string) string {
	return kind + "/" + parentID + "/" + SubmissionsCollectionID
}

type NewQuestion struct {
	Prompt      string   `json:"prompt" validate:"required,notblank,max=2000"`
	Options     []string `json:"options" validate:"omitempty,min=2,max=10,dive,required"`
	AnswerIndex int      `json:"answerIndex" validate:"gte=0"`
	Points      float64  `json:"points" validate:"gte=0"`
}

// NewWork contains information needed to create an assignment, an exam or a project.
type NewWork struct {
	Title           string        `json:"title" validate:"required,notblank,max=200"`
	Description     string        `json:"description" validate:"max=10000"`
	CourseID        string        `json:"courseId" validate:"required"`
	DueDate         *time.Time    `json:"dueDate"`
	MaxGrade        float64       `json:"maxGrade" validate:"gte=0"`
	DurationMinutes int           `json:"durationMinutes" validate:"gte=0,lte=1440"`
	PassingScore    float64       `json:"passingScore" validate:"gte=0,lte=100"`
	Questions       []NewQuestion `json:"questions" validate:"max=200,dive"`
	Requirements    []string      `json:"requirements" validate:"max=50,dive,max=500"`
	CreatedBy       string        `json:"-"`
}

func (nw *NewWork) Clean() {
	nw.Title = core.CleanString(nw.Title)
	nw.Description = core.CleanString(nw.Description)
	nw.CourseID = core.CleanString(nw.CourseID)
	nw.Requirements = core.CleanStrings(nw.Requirements)
	for i := range nw.Questions {
		nw.Questions[i].Prompt = core.CleanString(nw.Questions[i].Prompt)
	}
}

func (nw NewWork) validate(kind string) error {
	if kind == KindExam && len(nw.Questions) == 0 {
		return core.NewFieldError("questions", "an exam needs at least one question")
	}
	for i, q := range nw.Questions {
		if len(q.Options) > 0 && q.AnswerIndex >= len(q.Options) {
			return core.NewValidationError(
				ErrInvalidAnswerIndex,
				core.FieldError{Field: "questions[" + strconv.Itoa(i) + "].answerIndex", Error: ErrInvalidAnswerIndex.Error()},
			)
		}
	}
	return nil
}

func toQuestions(nqs []NewQuestion) []Question {
	qs := make([]Question, 0, len(nqs))
	for _, nq := range nqs {
		qs = append(qs, Question{Prompt: nq.Prompt, Options: nq.Options, AnswerIndex: nq.AnswerIndex, Points: nq.Points})
	}
	return qs
}

// UpdateWork defines what information may be provided to modify an existing piece of coursework.
type UpdateWork struct {
	Title           *string        `json:"title" validate:"omitempty,notblank,max=200"`
	Description     *string        `json:"description" validate:"omitempty,max=10000"`
	CourseID        *string        `json:"courseId" validate:"omitempty,notblank"`
	DueDate         *time.Time     `json:"dueDate"`
	MaxGrade        *float64       `json:"maxGrade" validate:"omitempty,gte=0"`
	DurationMinutes *int           `json:"durationMinutes" validate:"omitempty,gte=0,lte=1440"`
	PassingScore    *float64       `json:"passingScore" validate:"omitempty,gte=0,lte=100"`
	Questions       *[]NewQuestion `json:"questions" validate:"omitempty,max=200,dive"`
	Requirements    *[]string      `json:"requirements" validate:"omitempty,max=50,dive,max=500"`
}

func (uw UpdateWork) fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if uw.Title != nil {
		fields["title"] = core.CleanString(*uw.Title)
	}
	if uw.Description != nil {
		fields["description"] = core.CleanString(*uw.Description)
	}
	if uw.CourseID != nil {
		fields["courseId"] = core.CleanString(*uw.CourseID)
	}
	if uw.DueDate != nil {
		fields["dueDate"] = uw.DueDate.UTC()
	}
	if uw.MaxGrade != nil {
		fields["maxGrade"] = *uw.MaxGrade
	}
	if uw.DurationMinutes != nil {
		fields["durationMinutes"] = *uw.DurationMinutes
	}
	if uw.PassingScore != nil {
		fields["passingScore"] = *uw.PassingScore
	}
	if uw.Questions != nil {
		fields["questions"] = toQuestions(*uw.Questions)
	}
	if uw.Requirements != nil {
		reqs := core.CleanStrings(*uw.Requirements)
		if reqs == nil {
			reqs = []string{}
		}
		fields["requirements"] = reqs
	}
	return fields
}

// NewSubmission is what a student hands in.
type NewSubmission struct {
	ColabLink string `json:"colabLink" validate:"omitempty,url"`
	Content   string `json:"content" validate:"max=20000"`
	Answers   []int  `json:"answers" validate:"max=200"`
	UserID    string `json:"-"`
}

type GradeSubmission struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"max=5000"`
	GradedBy string   `json:"-"`
}

type SubmissionFilter struct {
	UserID   string `query:"userId"`
	CourseID string `query:"courseId"`
	Kind     string `query:"kind"`
	Status   string `query:"status"`
}

func (sf SubmissionFilter) query() core.Query {
	q := core.NewGroupQuery(SubmissionsCollectionID)
	if sf.UserID != "" {
		q = q.Where("userId", core.OpEqual, sf.UserID)
	}
	if sf.CourseID != "" {
		q = q.Where("courseId", core.OpEqual, sf.CourseID)
	}
	if sf.Kind != "" {
		q = q.Where("kind", core.OpEqual, sf.Kind)
	}
	if sf.Status != "" {
		q = q.Where("status", core.OpEqual, sf.Status)
	}
	return q.OrderBy(core.DBOrdering{Field: "submittedAt"})
}
