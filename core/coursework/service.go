package coursework

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

var (
	ErrNotFound           = errors.New("coursework not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidKind        = errors.New("invalid coursework kind")
	ErrAlreadyGraded      = errors.New("submission already graded")
	ErrInvalidAnswerIndex = errors.New("answer index out of the options range")
	ErrGradeTooHigh       = errors.New("grade exceeds the maximum grade")
	ErrNothingToWrite     = errors.New("no field to update")
)

// Service manages assignments, exams and projects and their submissions.
type Service struct {
	db       core.DocumentStore
	validate *validator.Validate
}

func NewService(db core.DocumentStore, validate *validator.Validate) *Service {
	return &Service{db: db, validate: validate}
}

func checkKind(kind string) error {
	if !core.StringsContain(Kinds, kind) {
		return ErrInvalidKind
	}
	return nil
}

func notFound(err, sentinel error, action string) error {
	if errors.Cause(err) == core.ErrDocNotFound {
		return sentinel
	}
	return errors.Wrap(err, action)
}

func (svc *Service) Create(ctx context.Context, kind string, nw NewWork) (Work, error) {
	if err := checkKind(kind); err != nil {
		return Work{}, err
	}
	nw.Clean()
	if err := svc.validate.Struct(nw); err != nil {
		return Work{}, err
	}
	if err := nw.validate(kind); err != nil {
		return Work{}, err
	}

	now := core.NowFunc()
	w := Work{
		Kind:            kind,
		Title:           nw.Title,
		Description:     nw.Description,
		CourseID:        nw.CourseID,
		DueDate:         nw.DueDate,
		MaxGrade:        nw.MaxGrade,
		DurationMinutes: nw.DurationMinutes,
		PassingScore:    nw.PassingScore,
		Questions:       toQuestions(nw.Questions),
		Requirements:    nw.Requirements,
		CreatedBy:       nw.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if w.Requirements == nil {
		w.Requirements = []string{}
	}
	if w.DueDate != nil {
		due := w.DueDate.UTC()
		w.DueDate = &due
	}

	data, err := core.EncodeDocument(w)
	if err != nil {
		return Work{}, err
	}
	if w.ID, err = svc.db.Create(ctx, kind, data); err != nil {
		return Work{}, errors.Wrapf(err, "creating %s", kind)
	}
	return w, nil
}

func (svc *Service) Get(ctx context.Context, kind, id string) (Work, error) {
	if err := checkKind(kind); err != nil {
		return Work{}, err
	}
	if id == "" {
		return Work{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, kind, id)
	if err != nil {
		return Work{}, notFound(err, ErrNotFound, "getting "+kind)
	}
	var w Work
	return w, doc.DataTo(&w)
}

// ListByCourse returns the coursework of a kind attached to a course, by due date.
func (svc *Service) ListByCourse(ctx context.Context, kind, courseID string) ([]Work, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	q := core.NewQuery(kind).
		Where("courseId", core.OpEqual, courseID).
		OrderBy(core.DBOrdering{Field: "dueDate", Ascending: true}, core.DBOrdering{Field: "createdAt", Ascending: true})
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", kind)
	}
	return core.DecodeDocuments[Work](docs)
}

func (svc *Service) Update(ctx context.Context, kind, id string, uw UpdateWork) (Work, error) {
	if err := checkKind(kind); err != nil {
		return Work{}, err
	}
	if err := svc.validate.Struct(uw); err != nil {
		return Work{}, err
	}
	fields := uw.fields()
	if len(fields) == 0 {
		return Work{}, core.NewValidationError(ErrNothingToWrite)
	}
	if uw.Questions != nil {
		if err := (NewWork{Questions: *uw.Questions}).validate(kind); err != nil {
			return Work{}, err
		}
	}
	fields["updatedAt"] = core.NowFunc()

	data, err := core.NormalizeData(fields)
	if err != nil {
		return Work{}, err
	}
	if id == "" {
		return Work{}, ErrNotFound
	}
	if err := svc.db.Update(ctx, kind, id, data); err != nil {
		return Work{}, notFound(err, ErrNotFound, "updating "+kind)
	}
	return svc.Get(ctx, kind, id)
}

// Delete removes a piece of coursework; its submissions are kept.
func (svc *Service) Delete(ctx context.Context, kind, id string) error {
	if _, err := svc.Get(ctx, kind, id); err != nil {
		return err
	}
	return errors.Wrapf(svc.db.Delete(ctx, kind, id), "deleting %s", kind)
}

// Submit hands in a student's work. A student has a single submission per piece of coursework,
// which can be replaced until it is graded. Exams are scored right away.
func (svc *Service) Submit(ctx context.Context, kind, parentID string, ns NewSubmission) (Submission, error) {
	ns.ColabLink = core.CleanString(ns.ColabLink)
	if err := svc.validate.Struct(ns); err != nil {
		return Submission{}, err
	}
	if ns.UserID == "" {
		return Submission{}, core.ErrPermissionDenied
	}
	w, err := svc.Get(ctx, kind, parentID)
	if err != nil {
		return Submission{}, err
	}

	prev, err := svc.GetSubmission(ctx, kind, parentID, ns.UserID)
	switch {
	case err == nil && prev.IsGraded():
		return Submission{}, ErrAlreadyGraded
	case err != nil && err != ErrSubmissionNotFound:
		return Submission{}, err
	}

	now := core.NowFunc()
	sub := Submission{
		ID:          ns.UserID,
		UserID:      ns.UserID,
		Kind:        kind,
		ParentID:    parentID,
		CourseID:    w.CourseID,
		ColabLink:   ns.ColabLink,
		Answers:     ns.Answers,
		Content:     ns.Content,
		Status:      StatusPending,
		SubmittedAt: now,
	}
	if sub.Answers == nil {
		sub.Answers = []int{}
	}
	if w.IsExam() {
		score := w.Score(ns.Answers)
		sub.Grade = &score
		sub.Status = StatusGraded
		sub.GradedAt = &now
	}

	data, err := core.EncodeDocument(sub)
	if err != nil {
		return Submission{}, err
	}
	if err := svc.db.Set(ctx, SubmissionsCollection(kind, parentID), sub.ID, data); err != nil {
		return Submission{}, errors.Wrap(err, "saving submission")
	}
	return sub, nil
}

func (svc *Service) GetSubmission(ctx context.Context, kind, parentID, id string) (Submission, error) {
	if err := checkKind(kind); err != nil {
		return Submission{}, err
	}
	if parentID == "" || id == "" {
		return Submission{}, ErrSubmissionNotFound
	}
	doc, err := svc.db.Get(ctx, SubmissionsCollection(kind, parentID), id)
	if err != nil {
		return Submission{}, notFound(err, ErrSubmissionNotFound, "getting submission")
	}
	var sub Submission
	return sub, doc.DataTo(&sub)
}

// Grade is the only way for a submission to become Graded. A grade is final.
func (svc *Service) Grade(ctx context.Context, kind, parentID, id string, gs GradeSubmission) (Submission, error) {
	gs.Feedback = core.CleanString(gs.Feedback)
	if err := svc.validate.Struct(gs); err != nil {
		return Submission{}, err
	}
	w, err := svc.Get(ctx, kind, parentID)
	if err != nil {
		return Submission{}, err
	}
	if w.MaxGrade > 0 && *gs.Grade > w.MaxGrade {
		return Submission{}, core.NewValidationError(ErrGradeTooHigh, core.FieldError{Field: "grade", Error: ErrGradeTooHigh.Error()})
	}
	sub, err := svc.GetSubmission(ctx, kind, parentID, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.Status == StatusGraded {
		return Submission{}, ErrAlreadyGraded
	}

	now := core.NowFunc()
	sub.Grade = gs.Grade
	sub.Feedback = gs.Feedback
	sub.GradedBy = gs.GradedBy
	sub.Status = StatusGraded
	sub.GradedAt = &now

	data, err := core.NormalizeData(map[string]interface{}{
		"grade":    *sub.Grade,
		"feedback": sub.Feedback,
		"gradedBy": sub.GradedBy,
		"status":   sub.Status,
		"gradedAt": now,
	})
	if err != nil {
		return Submission{}, err
	}
	if err := svc.db.Update(ctx, SubmissionsCollection(kind, parentID), id, data); err != nil {
		return Submission{}, notFound(err, ErrSubmissionNotFound, "grading submission")
	}
	return sub, nil
}

// ListSubmissions returns the submissions of a piece of coursework, oldest first.
func (svc *Service) ListSubmissions(ctx context.Context, kind, parentID string) ([]Submission, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	q := core.NewQuery(SubmissionsCollection(kind, parentID)).OrderBy(core.DBOrdering{Field: "submittedAt", Ascending: true})
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return core.DecodeDocuments[Submission](docs)
}

// QuerySubmissions searches the submissions of every piece of coursework, newest first.
func (svc *Service) QuerySubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	if filter.Kind != "" {
		if err := checkKind(filter.Kind); err != nil {
			return nil, err
		}
	}
	docs, err := svc.db.Query(ctx, filter.query())
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return core.DecodeDocuments[Submission](docs)
}
