package tasks

import (
	"context"
	"fmt"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Engine identity.
const (
	EngineKey = "tasks.task"
	PHIDType  = "TASK"
	Monogram  = "T"
)

// Transaction types published by the task engine.
const (
	TypeTitle       = "task:title"
	TypeDescription = "task:description"
	TypeStatus      = "task:status"
	TypePriority    = "task:priority"
	TypeOwner       = "task:owner"
	TypePoints      = "task:points"
	TypeProjects    = "task:projects"
)

// Statuses a task may be in.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusWontfix  = "wontfix"
	StatusInvalid  = "invalid"
)

// Priorities a task may carry.
const (
	PriorityUnbreak = "unbreak"
	PriorityHigh    = "high"
	PriorityNormal  = "normal"
	PriorityLow     = "low"
	PriorityWish    = "wishlist"
)

// Statuses lists every status in display order.
var Statuses = []string{StatusOpen, StatusResolved, StatusWontfix, StatusInvalid}

// Priorities lists every priority from most to least urgent.
var Priorities = []string{PriorityUnbreak, PriorityHigh, PriorityNormal, PriorityLow, PriorityWish}

// Task is a unit of tracked work.
type Task struct {
	edit.Header

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	OwnerPHID   string   `json:"owner,omitempty"`
	Points      int64    `json:"points,omitempty"`
	Projects    []string `json:"projects,omitempty"`

	// Subscribers is maintained by the subscriptions extension.
	Subscribers []string `json:"subscribers,omitempty"`
}

// SubscriberPHIDs returns the subscribed users.
func (t *Task) SubscriberPHIDs() []string { return t.Subscribers }

// SetSubscriberPHIDs replaces the subscribed users.
func (t *Task) SetSubscriberPHIDs(phids []string) { t.Subscribers = phids }

// Definition is the edit definition of tasks.
type Definition struct {
	baseURI string
}

var (
	_ edit.Definition = (*Definition)(nil)
	_ edit.Loader     = (*Definition)(nil)
)

// NewDefinition creates the task definition. Object URIs are rooted at
// baseURI.
func NewDefinition(baseURI string) *Definition {
	return &Definition{baseURI: baseURI}
}

func (d *Definition) EngineKey() string  { return EngineKey }
func (d *Definition) PHIDType() string   { return PHIDType }
func (d *Definition) Monogram() string   { return Monogram }
func (d *Definition) ObjectName() string { return "task" }

// NewObject returns an open task of normal priority.
func (d *Definition) NewObject(viewer edit.Viewer) edit.Object {
	t := &Task{
		Status:   StatusOpen,
		Priority: PriorityNormal,
		Projects: []string{},
	}
	t.AuthorPHID = viewer.PHID
	return t
}

// LoadObject normalizes decoded tasks.
func (d *Definition) LoadObject(_ context.Context, obj edit.Object) error {
	t, ok := obj.(*Task)
	if !ok {
		return fmt.Errorf("unexpected object type %T", obj)
	}
	if t.Projects == nil {
		t.Projects = []string{}
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	return nil
}

func task(obj edit.Object) *Task {
	return obj.(*Task)
}

// BuildFields returns the task fields.
func (d *Definition) BuildFields(obj edit.Object) []*edit.Field {
	minPoints := int64(0)
	maxPoints := int64(100)

	return []*edit.Field{
		edit.NewField("title", "Title", edit.TextKind{MaxLength: 255}).
			WithTransaction(TypeTitle).
			WithDescription("Name of the task.").
			WithExamples("Fix login redirect").
			Required().
			Copyable().
			Bind(
				func(o edit.Object) any { return task(o).Title },
				func(o edit.Object, v any) { task(o).Title = v.(string) },
			),
		edit.NewTextField("description", "Description").
			WithTransaction(TypeDescription).
			WithDescription("Detailed task description.").
			Copyable().
			Bind(
				func(o edit.Object) any { return task(o).Description },
				func(o edit.Object, v any) { task(o).Description = v.(string) },
			),
		edit.NewSelectField("status", "Status", Statuses...).
			WithTransaction(TypeStatus).
			WithDescription("Status of the task.").
			WithExamples(StatusResolved).
			CommentAction().
			Bind(
				func(o edit.Object) any { return task(o).Status },
				func(o edit.Object, v any) { task(o).Status = v.(string) },
			),
		edit.NewSelectField("priority", "Priority", Priorities...).
			WithTransaction(TypePriority).
			WithDescription("Priority of the task.").
			WithExamples(PriorityHigh).
			CommentAction().
			Copyable().
			Bind(
				func(o edit.Object) any { return task(o).Priority },
				func(o edit.Object, v any) { task(o).Priority = v.(string) },
			),
		edit.NewTextField("owner", "Assigned To").
			WithTransaction(TypeOwner).
			WithParameterKey("assign").
			WithDescription("PHID of the user the task is assigned to.").
			WithRules(`value == "" || value.startsWith("PHID-USER-")`).
			CommentAction().
			Bind(
				func(o edit.Object) any { return task(o).OwnerPHID },
				func(o edit.Object, v any) { task(o).OwnerPHID = v.(string) },
			),
		edit.NewField("points", "Points", edit.IntKind{Min: &minPoints, Max: &maxPoints}).
			WithTransaction(TypePoints).
			WithDescription("Story points.").
			WithExamples("3").
			Bind(
				func(o edit.Object) any { return task(o).Points },
				func(o edit.Object, v any) { task(o).Points = v.(int64) },
			),
		edit.NewListField("projects", "Tags").
			WithTransaction(TypeProjects).
			WithParameterKey("tags").
			WithDescription("Project tags, comma separated in parameters.").
			WithExamples("backend,security").
			Copyable().
			Bind(
				func(o edit.Object) any { return append([]string(nil), task(o).Projects...) },
				func(o edit.Object, v any) { task(o).Projects = append([]string{}, v.([]string)...) },
			),
	}
}

// BuiltinConfigurations returns the standard task form and a bug report form.
func (d *Definition) BuiltinConfigurations() []*edit.Configuration {
	return []*edit.Configuration{
		{
			BuiltinKey: edit.DefaultConfigurationKey,
			Name:       "Create Task",
			IsDefault:  true,
			IsEdit:     true,
		},
		{
			BuiltinKey:  "bug",
			Name:        "Report Bug",
			Preamble:    "Describe what you expected to happen and what happened instead.",
			IsDefault:   true,
			CreateOrder: 1,
			FieldOrder:  []string{"title", "priority", "description"},
			Fields: map[string]edit.FieldCustomization{
				"priority": {Default: PriorityHigh},
				"points":   {Hidden: boolPtr(true)},
			},
		},
	}
}

// ObjectURI returns the monogram URI of a task.
func (d *Definition) ObjectURI(obj edit.Object) string {
	h := obj.ObjectHeader()
	if h.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s%d", d.baseURI, Monogram, h.ID)
}

func boolPtr(b bool) *bool {
	return &b
}
