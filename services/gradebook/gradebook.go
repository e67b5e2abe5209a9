// Package gradebook exports the grades of a course to an xlsx workbook.
package gradebook

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/user"
)

// Sheet names
const (
	GradesSheet      = "Grades"
	SubmissionsSheet = "Submissions"
)

const (
	cellPending   = "Pending"
	timeFormat    = "2006-01-02 15:04"
	defaultSheet  = "Sheet1"
	nameColWidth  = 28
	otherColWidth = 16
)

type (
	Coursework interface {
		ListByCourse(ctx context.Context, kind, courseID string) ([]coursework.Work, error)
		QuerySubmissions(ctx context.Context, filter coursework.SubmissionFilter) ([]coursework.Submission, error)
	}

	Enrollments interface {
		ListForCourse(ctx context.Context, courseID string) ([]enrollment.Enrollment, error)
	}

	Users interface {
		Lookup(ctx context.Context, ids ...string) (map[string]user.User, error)
	}
)

type Exporter struct {
	work        Coursework
	enrollments Enrollments
	users       Users
}

func NewExporter(work Coursework, enrollments Enrollments, users Users) *Exporter {
	return &Exporter{work: work, enrollments: enrollments, users: users}
}

type student struct {
	id, name, email string
	progress        int
}

// Build creates a workbook with one row per student and one column per piece of coursework,
// followed by a sheet listing every submission.
func (ex *Exporter) Build(ctx context.Context, c course.Course) (*excelize.File, error) {
	var works []coursework.Work
	for _, kind := range coursework.Kinds {
		list, err := ex.work.ListByCourse(ctx, kind, c.ID)
		if err != nil {
			return nil, err
		}
		works = append(works, list...)
	}
	subs, err := ex.work.QuerySubmissions(ctx, coursework.SubmissionFilter{CourseID: c.ID})
	if err != nil {
		return nil, err
	}
	enrs, err := ex.enrollments.ListForCourse(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	students, err := ex.students(ctx, enrs, subs)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(defaultSheet, GradesSheet); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	if _, err := f.NewSheet(SubmissionsSheet); err != nil {
		return nil, errors.Wrap(err, "adding sheet")
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating style")
	}

	if err := writeGrades(f, header, works, students, subs); err != nil {
		return nil, err
	}
	if err := writeSubmissions(f, header, works, students, subs); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write builds the workbook and writes it to w.
func (ex *Exporter) Write(ctx context.Context, w io.Writer, c course.Course) error {
	f, err := ex.Build(ctx, c)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return errors.Wrap(f.Write(w), "writing workbook")
}

// students lists the enrolled users and the other submitters, by name.
func (ex *Exporter) students(ctx context.Context, enrs []enrollment.Enrollment, subs []coursework.Submission) ([]student, error) {
	progress := make(map[string]int, len(enrs))
	ids := make([]string, 0, len(enrs))
	for _, enr := range enrs {
		progress[enr.UserID] = enr.Progress
		ids = append(ids, enr.UserID)
	}
	for _, sub := range subs {
		if _, ok := progress[sub.UserID]; !ok {
			progress[sub.UserID] = -1
			ids = append(ids, sub.UserID)
		}
	}
	users, err := ex.users.Lookup(ctx, ids...)
	if err != nil {
		return nil, err
	}

	list := make([]student, 0, len(ids))
	for _, id := range ids {
		st := student{id: id, name: id, progress: progress[id]}
		if usr, ok := users[id]; ok {
			st.name, st.email = usr.Name, usr.Email
		}
		list = append(list, st)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].name) < strings.ToLower(list[j].name)
	})
	return list, nil
}

func workKey(kind, id string) string { return kind + "/" + id }

func writeGrades(f *excelize.File, header int, works []coursework.Work, students []student, subs []coursework.Submission) error {
	bySubmitter := make(map[string]coursework.Submission, len(subs))
	for _, sub := range subs {
		bySubmitter[sub.UserID+"|"+workKey(sub.Kind, sub.ParentID)] = sub
	}

	row := []interface{}{"Student", "Email", "Progress (%)"}
	for _, w := range works {
		row = append(row, columnTitle(w))
	}
	if err := setRow(f, GradesSheet, 1, row); err != nil {
		return err
	}
	for i, st := range students {
		row := []interface{}{st.name, st.email, ""}
		if st.progress >= 0 {
			row[2] = st.progress
		}
		for _, w := range works {
			sub, ok := bySubmitter[st.id+"|"+workKey(w.Kind, w.ID)]
			row = append(row, gradeCell(sub, ok))
		}
		if err := setRow(f, GradesSheet, i+2, row); err != nil {
			return err
		}
	}
	return format(f, GradesSheet, header, 3+len(works))
}

func writeSubmissions(f *excelize.File, header int, works []coursework.Work, students []student, subs []coursework.Submission) error {
	titles := make(map[string]string, len(works))
	for _, w := range works {
		titles[workKey(w.Kind, w.ID)] = w.Title
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.id] = st.name
	}

	sorted := append([]coursework.Submission(nil), subs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt) })

	cols := []interface{}{"Student", "Kind", "Title", "Status", "Grade", "Submitted at", "Graded at", "Feedback", "Link"}
	if err := setRow(f, SubmissionsSheet, 1, cols); err != nil {
		return err
	}
	for i, sub := range sorted {
		title, ok := titles[workKey(sub.Kind, sub.ParentID)]
		if !ok {
			title = sub.ParentID
		}
		row := []interface{}{
			names[sub.UserID],
			kindLabel(sub.Kind),
			title,
			sub.Status,
			gradeCell(sub, true),
			sub.SubmittedAt.Format(timeFormat),
			"",
			sub.Feedback,
			sub.ColabLink,
		}
		if sub.GradedAt != nil {
			row[6] = sub.GradedAt.Format(timeFormat)
		}
		if err := setRow(f, SubmissionsSheet, i+2, row); err != nil {
			return err
		}
	}
	return format(f, SubmissionsSheet, header, len(cols))
}

func gradeCell(sub coursework.Submission, ok bool) interface{} {
	switch {
	case !ok:
		return ""
	case sub.IsGraded():
		return *sub.Grade
	default:
		return cellPending
	}
}

func columnTitle(w coursework.Work) string {
	title := kindLabel(w.Kind) + ": " + w.Title
	switch {
	case w.IsExam():
		title += " (%)"
	case w.MaxGrade > 0:
		title += " (/" + strconv.FormatFloat(w.MaxGrade, 'f', -1, 64) + ")"
	}
	return title
}

func kindLabel(kind string) string {
	switch kind {
	case coursework.KindAssignment:
		return "Assignment"
	case coursework.KindExam:
		return "Exam"
	case coursework.KindProject:
		return "Project"
	}
	return kind
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "locating row")
	}
	return errors.Wrap(f.SetSheetRow(sheet, cell, &values), "writing row")
}

// format makes the header bold and sizes the columns.
func format(f *excelize.File, sheet string, header, cols int) error {
	if err := f.SetRowStyle(sheet, 1, 1, header); err != nil {
		return errors.Wrap(err, "styling header")
	}
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	if err := f.SetColWidth(sheet, "A", last, otherColWidth); err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	return errors.Wrap(f.SetColWidth(sheet, "A", "A", nameColWidth), "sizing columns")
}
