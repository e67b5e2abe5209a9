package course

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codexlms/codex/core"
)

const Collection = "courses"

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

var orderingFields = []string{"title", "createdAt", "updatedAt", "price", "level"}

type (
	Lesson struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		Content         string `json:"content"`
		VideoURL        string `json:"videoUrl"`
		DurationMinutes int    `json:"durationMinutes"`
	}

	Module struct {
		ID      string   `json:"id"`
		Title   string   `json:"title"`
		Lessons []Lesson `json:"lessons"`
	}

	Resource struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Kind  string `json:"kind"` // link, pdf, video, repo...
	}

	Course struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Tags        []string   `json:"tags"`
		Category    string     `json:"category"`
		Level       string     `json:"level"`
		ImageURL    string     `json:"imageUrl"`
		Modules     []Module   `json:"modules"`
		Resources   []Resource `json:"resources"`
		TeacherID   string     `json:"teacherId"`
		Price       float64    `json:"price"`
		Status      string     `json:"status"`
		CreatedAt   time.Time  `json:"createdAt"`
		UpdatedAt   time.Time  `json:"updatedAt"`
	}
)

// TotalLessons counts the lessons of every module.
func (c Course) TotalLessons() int {
	var n int
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

func (c Course) HasLesson(lessonID string) bool {
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return true
			}
		}
	}
	return false
}

func (c Course) IsPublished() bool { return c.Status == StatusPublished }

// Outline returns the course without lesson contents, for users who are not enrolled.
func (c Course) Outline() Course {
	modules := make([]Module, 0, len(c.Modules))
	for _, m := range c.Modules {
		lessons := make([]Lesson, 0, len(m.Lessons))
		for _, l := range m.Lessons {
			lessons = append(lessons, Lesson{ID: l.ID, Title: l.Title, DurationMinutes: l.DurationMinutes})
		}
		modules = append(modules, Module{ID: m.ID, Title: m.Title, Lessons: lessons})
	}
	c.Modules = modules
	return c
}

type NewLesson struct {
	Title           string `json:"title" validate:"required,notblank,max=200"`
	Content         string `json:"content" validate:"max=100000"`
	VideoURL        string `json:"videoUrl" validate:"omitempty,url"`
	DurationMinutes int    `json:"durationMinutes" validate:"gte=0,lte=1440"`
}

func (nl NewLesson) toLesson() Lesson {
	return Lesson{
		ID:              uuid.NewString(),
		Title:           core.CleanString(nl.Title),
		Content:         strings.TrimSpace(nl.Content),
		VideoURL:        core.CleanString(nl.VideoURL),
		DurationMinutes: nl.DurationMinutes,
	}
}

type NewModule struct {
	Title   string      `json:"title" validate:"required,notblank,max=200"`
	Lessons []NewLesson `json:"lessons" validate:"dive"`
}

func (nm NewModule) toModule() Module {
	lessons := make([]Lesson, 0, len(nm.Lessons))
	for _, nl := range nm.Lessons {
		lessons = append(lessons, nl.toLesson())
	}
	return Module{ID: uuid.NewString(), Title: core.CleanString(nm.Title), Lessons: lessons}
}

func toModules(nms []NewModule) []Module {
	modules := make([]Module, 0, len(nms))
	for _, nm := range nms {
		modules = append(modules, nm.toModule())
	}
	return modules
}

type NewResource struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
	URL   string `json:"url" validate:"required,url"`
	Kind  string `json:"kind" validate:"omitempty,oneof=link pdf video repo doc"`
}

func toResources(nrs []NewResource) []Resource {
	resources := make([]Resource, 0, len(nrs))
	for _, nr := range nrs {
		kind := nr.Kind
		if kind == "" {
			kind = "link"
		}
		resources = append(resources, Resource{Title: core.CleanString(nr.Title), URL: core.CleanString(nr.URL), Kind: kind})
	}
	return resources
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string        `json:"title" validate:"required,notblank,max=200"`
	Description string        `json:"description" validate:"max=5000"`
	Tags        []string      `json:"tags" validate:"max=20,dive,max=40"`
	Category    string        `json:"category" validate:"max=100"`
	Level       string        `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	ImageURL    string        `json:"imageUrl" validate:"omitempty,url"`
	Modules     []NewModule   `json:"modules" validate:"dive"`
	Resources   []NewResource `json:"resources" validate:"dive"`
	TeacherID   string        `json:"teacherId"`
	Price       float64       `json:"price" validate:"gte=0"`
	Status      string        `json:"status" validate:"omitempty,oneof=draft published archived"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = strings.TrimSpace(nc.Description)
	nc.Tags = core.CleanStrings(nc.Tags)
	nc.Category = core.CleanString(nc.Category)
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	nc.ImageURL = core.CleanString(nc.ImageURL)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	nc.Status = core.CleanString(nc.Status, true /* lower */)
	if nc.Status == "" {
		nc.Status = StatusDraft
	}
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Only non-nil fields are written.
type UpdateCourse struct {
	Title       *string        `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string        `json:"description" validate:"omitempty,max=5000"`
	Tags        *[]string      `json:"tags" validate:"omitempty,max=20,dive,max=40"`
	Category    *string        `json:"category" validate:"omitempty,max=100"`
	Level       *string        `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	ImageURL    *string        `json:"imageUrl" validate:"omitempty,url"`
	Modules     *[]NewModule   `json:"modules" validate:"omitempty,dive"`
	Resources   *[]NewResource `json:"resources" validate:"omitempty,dive"`
	TeacherID   *string        `json:"teacherId"`
	Price       *float64       `json:"price" validate:"omitempty,gte=0"`
	Status      *string        `json:"status" validate:"omitempty,oneof=draft published archived"`
}

func (uc *UpdateCourse) Clean() {
	cleanPtr := func(s *string, lower ...bool) *string {
		if s == nil {
			return nil
		}
		v := core.CleanString(*s, lower...)
		return &v
	}
	uc.Title = cleanPtr(uc.Title)
	uc.Category = cleanPtr(uc.Category)
	uc.Level = cleanPtr(uc.Level, true /* lower */)
	uc.ImageURL = cleanPtr(uc.ImageURL)
	uc.TeacherID = cleanPtr(uc.TeacherID)
	uc.Status = cleanPtr(uc.Status, true /* lower */)
	if uc.Description != nil {
		desc := strings.TrimSpace(*uc.Description)
		uc.Description = &desc
	}
	if uc.Tags != nil {
		tags := core.CleanStrings(*uc.Tags)
		if tags == nil {
			tags = []string{}
		}
		uc.Tags = &tags
	}
}

func (uc UpdateCourse) IsEmpty() bool {
	return uc.Title == nil && uc.Description == nil && uc.Tags == nil && uc.Category == nil && uc.Level == nil &&
		uc.ImageURL == nil && uc.Modules == nil && uc.Resources == nil && uc.TeacherID == nil && uc.Price == nil &&
		uc.Status == nil
}

// fields returns the document fields to write.
func (uc UpdateCourse) fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if uc.Title != nil {
		fields["title"] = *uc.Title
	}
	if uc.Description != nil {
		fields["description"] = *uc.Description
	}
	if uc.Tags != nil {
		fields["tags"] = *uc.Tags
	}
	if uc.Category != nil {
		fields["category"] = *uc.Category
	}
	if uc.Level != nil {
		fields["level"] = *uc.Level
	}
	if uc.ImageURL != nil {
		fields["imageUrl"] = *uc.ImageURL
	}
	if uc.Modules != nil {
		fields["modules"] = toModules(*uc.Modules)
	}
	if uc.Resources != nil {
		fields["resources"] = toResources(*uc.Resources)
	}
	if uc.TeacherID != nil {
		fields["teacherId"] = *uc.TeacherID
	}
	if uc.Price != nil {
		fields["price"] = *uc.Price
	}
	if uc.Status != nil {
		fields["status"] = *uc.Status
	}
	return fields
}

type QueryFilter struct {
	Search    string `query:"search"`
	Status    string `query:"status"`
	Tag       string `query:"tag"`
	TeacherID string `query:"teacherId"`
	Category  string `query:"category"`
	Level     string `query:"level"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.Category = core.CleanString(qf.Category)
	qf.Level = core.CleanString(qf.Level, true /* lower */)
}

func (qf *QueryFilter) query() core.Query {
	q := core.NewQuery(Collection)
	if qf.Status != "" {
		q = q.Where("status", core.OpEqual, qf.Status)
	}
	if qf.Tag != "" {
		q = q.Where("tags", core.OpArrayContains, qf.Tag)
	}
	if qf.TeacherID != "" {
		q = q.Where("teacherId", core.OpEqual, qf.TeacherID)
	}
	if qf.Category != "" {
		q = q.Where("category", core.OpEqual, qf.Category)
	}
	if qf.Level != "" {
		q = q.Where("level", core.OpEqual, qf.Level)
	}
	return q
}

// match does a case-insensitive search on the title, description and tags.
func (qf *QueryFilter) match(c Course) bool {
	if qf.Search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Title), qf.Search) || strings.Contains(strings.ToLower(c.Description), qf.Search) {
		return true
	}
	return core.StringsContain(c.Tags, qf.Search)
}
