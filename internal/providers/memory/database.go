package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/agenda/internal/capability"
)

const defaultEventLimit = 50

// Database store en memoria. La unicidad de external_subject_id la garantiza el
// mutex del store, igual que un índice único en una base real.
type Database struct {
	mu        sync.RWMutex
	users     map[string]*capability.User
	bySubject map[string]string // external_subject_id → id
	events    map[string]*capability.Event
	profiles  map[string]*capability.Profile
	now       func() time.Time
}

func NewDatabase() *Database {
	return &Database{
		users:     make(map[string]*capability.User),
		bySubject: make(map[string]string),
		events:    make(map[string]*capability.Event),
		profiles:  make(map[string]*capability.Profile),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ capability.Database = (*Database)(nil)
	_ capability.Pinger   = (*Database)(nil)
)

func (d *Database) Name() string                 { return Name }
func (d *Database) Ping(ctx context.Context) error { return nil }

// ─── Users ───

func (d *Database) GetUserBySubject(ctx context.Context, sub string) (*capability.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.bySubject[sub]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	u := *d.users[id]
	return &u, nil
}

func (d *Database) CreateUser(ctx context.Context, in capability.NewUser) (*capability.User, error) {
	if in.ExternalSubjectID == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "external_subject_id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.bySubject[in.ExternalSubjectID]; exists {
		return nil, capability.NewError(capability.CodeConflict, "duplicate external_subject_id")
	}
	now := d.now()
	u := &capability.User{
		ID:                uuid.NewString(),
		ExternalSubjectID: in.ExternalSubjectID,
		Email:             in.Email,
		DisplayName:       in.DisplayName,
		AvatarURL:         in.AvatarURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	d.users[u.ID] = u
	d.bySubject[u.ExternalSubjectID] = u.ID
	out := *u
	return &out, nil
}

func (d *Database) UpdateUserMirror(ctx context.Context, id string, m capability.Mirror) (*capability.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	u.Email, u.DisplayName, u.AvatarURL = m.Email, m.DisplayName, m.AvatarURL
	u.UpdatedAt = d.now()
	out := *u
	return &out, nil
}

// UserCount cantidad de filas de usuario. Para tests.
func (d *Database) UserCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// ─── Events ───

func (d *Database) GetEvents(ctx context.Context, f capability.EventFilter) ([]capability.Event, error) {
	d.mu.RLock()
	out := make([]capability.Event, 0, len(d.events))
	for _, e := range d.events {
		if matchEvent(e, f) {
			out = append(out, *e)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if f.Offset >= len(out) {
		return []capability.Event{}, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchEvent(e *capability.Event, f capability.EventFilter) bool {
	if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.StartsAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.StartsAt.After(f.To) {
		return false
	}
	return true
}

func (d *Database) GetEvent(ctx context.Context, id string) (*capability.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.events[id]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "event not found")
	}
	out := *e
	return &out, nil
}

func (d *Database) CreateEvent(ctx context.Context, in capability.EventInput) (*capability.Event, error) {
	if strings.TrimSpace(in.Title) == "" || in.OrganizerID == "" {
		return nil, capability.NewError(capability.CodeInvalidArgument, "title and organizer are required")
	}
	status := in.Status
	if status == "" {
		status = "pending"
	}
	now := d.now()
	e := &capability.Event{
		ID:          uuid.NewString(),
		OrganizerID: in.OrganizerID,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		ImageURL:    in.ImageURL,
		Status:      status,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.mu.Lock()
	d.events[e.ID] = e
	d.mu.Unlock()
	out := *e
	return &out, nil
}

func (d *Database) UpdateEvent(ctx context.Context, id string, p capability.EventPatch) (*capability.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.events[id]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "event not found")
	}
	setIf(&e.Title, p.Title)
	setIf(&e.Description, p.Description)
	setIf(&e.Location, p.Location)
	setIf(&e.ImageURL, p.ImageURL)
	setIf(&e.Status, p.Status)
	if p.StartsAt != nil {
		e.StartsAt = *p.StartsAt
	}
	if p.EndsAt != nil {
		e.EndsAt = *p.EndsAt
	}
	e.UpdatedAt = d.now()
	out := *e
	return &out, nil
}

func (d *Database) DeleteEvent(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.events[id]; !ok {
		return capability.NewError(capability.CodeNotFound, "event not found")
	}
	delete(d.events, id)
	return nil
}

// ─── Profiles ───

func (d *Database) GetProfile(ctx context.Context, userID string) (*capability.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, capability.NewError(capability.CodeNotFound, "profile not found")
	}
	out := *p
	return &out, nil
}

// UpdateProfile crea el perfil si no existe (upsert).
func (d *Database) UpdateProfile(ctx context.Context, userID string, patch capability.ProfilePatch) (*capability.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return nil, capability.NewError(capability.CodeNotFound, "user not found")
	}
	p, ok := d.profiles[userID]
	if !ok {
		p = &capability.Profile{UserID: userID}
		d.profiles[userID] = p
	}
	setIf(&p.DisplayName, patch.DisplayName)
	setIf(&p.Bio, patch.Bio)
	setIf(&p.AvatarURL, patch.AvatarURL)
	setIf(&p.Locale, patch.Locale)
	p.UpdatedAt = d.now()
	out := *p
	return &out, nil
}

// ─── Genéricos: no soportados ───

func (d *Database) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, capability.NotSupported("query", Name)
}

func (d *Database) Insert(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, capability.NotSupported("insert", Name)
}

func (d *Database) Update(context.Context, string, map[string]any, map[string]any) (int64, error) {
	return 0, capability.NotSupported("update", Name)
}

func (d *Database) Delete(context.Context, string, map[string]any) (int64, error) {
	return 0, capability.NotSupported("delete", Name)
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
