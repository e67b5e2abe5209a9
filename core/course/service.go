package course

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

var (
	ErrNotFound       = errors.New("course not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrNothingToWrite = errors.New("no field to update")
)

type Service struct {
	db       core.DocumentStore
	validate *validator.Validate
}

func NewService(db core.DocumentStore, validate *validator.Validate) *Service {
	return &Service{db: db, validate: validate}
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Course{}, err
	}

	now := core.NowFunc()
	c := Course{
		Title:       nc.Title,
		Description: nc.Description,
		Tags:        nc.Tags,
		Category:    nc.Category,
		Level:       nc.Level,
		ImageURL:    nc.ImageURL,
		Modules:     toModules(nc.Modules),
		Resources:   toResources(nc.Resources),
		TeacherID:   nc.TeacherID,
		Price:       nc.Price,
		Status:      nc.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	data, err := core.EncodeDocument(c)
	if err != nil {
		return Course{}, err
	}
	if c.ID, err = svc.db.Create(ctx, Collection, data); err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	return c, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	if id == "" {
		return Course{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, Collection, id)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Course{}, ErrNotFound
		}
		return Course{}, errors.Wrap(err, "getting course")
	}
	var c Course
	return c, doc.DataTo(&c)
}

// Query returns the courses matching filter, newest first unless orderings say otherwise.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]Course, error) {
	filter.Clean()
	q := filter.query().OrderBy(cleanOrderings(orderings)...)
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses, err := core.DecodeDocuments[Course](docs)
	if err != nil {
		return nil, err
	}
	matched := courses[:0]
	for _, c := range courses {
		if filter.match(c) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func cleanOrderings(orderings []core.DBOrdering) []core.DBOrdering {
	cleaned := make([]core.DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if core.StringsContain(orderingFields, ord.Field) {
			cleaned = append(cleaned, ord)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, core.DBOrdering{Field: "createdAt"})
	}
	return cleaned
}

// Update writes the provided fields only and returns the updated course.
func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	uc.Clean()
	if err := svc.validate.Struct(uc); err != nil {
		return Course{}, err
	}
	if uc.IsEmpty() {
		return Course{}, core.NewValidationError(ErrNothingToWrite)
	}
	fields := uc.fields()
	fields["updatedAt"] = core.NowFunc()

	if err := svc.update(ctx, id, fields); err != nil {
		return Course{}, err
	}
	return svc.Get(ctx, id)
}

func (svc *Service) update(ctx context.Context, id string, fields map[string]interface{}) error {
	if id == "" {
		return ErrNotFound
	}
	data, err := core.NormalizeData(fields)
	if err != nil {
		return err
	}
	if err := svc.db.Update(ctx, Collection, id, data); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "updating course")
	}
	return nil
}

// Delete removes the course only: coursework, enrollments and submissions referencing it are kept.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.Get(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.db.Delete(ctx, Collection, id), "deleting course")
}

func (svc *Service) AddModule(ctx context.Context, courseID string, nm NewModule) (Course, error) {
	nm.Title = core.CleanString(nm.Title)
	if err := svc.validate.Struct(nm); err != nil {
		return Course{}, err
	}
	c, err := svc.Get(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	c.Modules = append(c.Modules, nm.toModule())
	return svc.saveModules(ctx, c)
}

func (svc *Service) AddLesson(ctx context.Context, courseID, moduleID string, nl NewLesson) (Course, error) {
	nl.Title = core.CleanString(nl.Title)
	if err := svc.validate.Struct(nl); err != nil {
		return Course{}, err
	}
	c, err := svc.Get(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	for i := range c.Modules {
		if c.Modules[i].ID == moduleID {
			c.Modules[i].Lessons = append(c.Modules[i].Lessons, nl.toLesson())
			return svc.saveModules(ctx, c)
		}
	}
	return Course{}, ErrModuleNotFound
}

func (svc *Service) saveModules(ctx context.Context, c Course) (Course, error) {
	c.UpdatedAt = core.NowFunc()
	if err := svc.update(ctx, c.ID, map[string]interface{}{"modules": c.Modules, "updatedAt": c.UpdatedAt}); err != nil {
		return Course{}, err
	}
	return c, nil
}

// CountLessons returns the number of lessons of a course.
func (svc *Service) CountLessons(ctx context.Context, id string) (int, error) {
	c, err := svc.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return c.TotalLessons(), nil
}

// Summaries lists every course id and title; used to give the assistant some context.
func (svc *Service) Summaries(ctx context.Context, limit int) ([]Summary, error) {
	docs, err := svc.db.Query(ctx, core.NewQuery(Collection).OrderBy(core.DBOrdering{Field: "createdAt"}).WithLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	summaries := make([]Summary, 0, len(docs))
	for _, doc := range docs {
		title, _ := doc.Data["title"].(string)
		status, _ := doc.Data["status"].(string)
		summaries = append(summaries, Summary{ID: doc.ID, Title: title, Status: status})
	}
	return summaries, nil
}

type Summary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}
