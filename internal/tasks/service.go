// Package tasks is the task resource. Every operation takes the resolved
// actor explicitly and applies the owner-or-admin rule against ownership read
// from the store, never from the request.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tasktracker/tasks-api/internal/apperr"
	"tasktracker/tasks-api/internal/auth"
)

const (
	maxTitleLength       = 255
	maxDescriptionLength = 1000
	maxImageURLLength    = 2048

	DefaultLimit = 10
	MaxLimit     = 50

	// maxPage keeps (page-1)*limit inside int for every accepted limit.
	maxPage = math.MaxInt / MaxLimit
)

var ErrImagesDisabled = errors.New("image storage is not configured")

// Users resolves the owner named in admin requests.
type Users interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
}

// Images stores an uploaded task image and returns its public URL.
type Images interface {
	PutTaskImage(ctx context.Context, taskID string, data []byte) (string, error)
}

type ServiceConfig struct {
	Users  Users
	Images Images
}

type Service struct {
	store  Store
	users  Users
	images Images

	nowFunc func() time.Time
	newID   func() string
}

func NewService(store Store, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user lookup is required")
	}
	return &Service{
		store:   store,
		users:   cfg.Users,
		images:  cfg.Images,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}, nil
}

// List returns one page of the tasks actor may see. Non-admin queries are
// restricted to the actor's own tasks inside the store query.
func (s *Service) List(ctx context.Context, actor auth.User, q ListQuery) (Page, error) {
	f, err := q.filter()
	if err != nil {
		return Page{}, err
	}
	if !actor.IsAdmin() {
		owner := actor.ID
		f.OwnerID = &owner
	}
	return s.page(ctx, f, q)
}

// ListForUser lists the tasks of userID. Admins may list anyone; a user may
// list only themself.
func (s *Service) ListForUser(ctx context.Context, actor auth.User, userID string, q ListQuery) (Page, error) {
	if err := auth.Authorize(actor, userID); err != nil {
		return Page{}, err
	}
	f, err := q.filter()
	if err != nil {
		return Page{}, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return Page{}, err
	}
	f.OwnerID = &userID
	return s.page(ctx, f, q)
}

func (s *Service) page(ctx context.Context, f ListFilter, q ListQuery) (Page, error) {
	page, limit := q.normalized()

	total, err := s.store.Count(ctx, f)
	if err != nil {
		return Page{}, apperr.Internal("count tasks", err)
	}
	items, err := s.store.List(ctx, f, Paging{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return Page{}, apperr.Internal("list tasks", err)
	}

	return Page{
		Data: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Service) Get(ctx context.Context, actor auth.User, id string) (Task, error) {
	return s.load(ctx, actor, id)
}

// load reads the task and checks actor against its stored owner. Absence is
// reported before any denial.
func (s *Service) load(ctx context.Context, actor auth.User, id string) (Task, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Task{}, apperr.NotFound("task not found")
		}
		return Task{}, apperr.Internal("load task", err)
	}
	if err := auth.Authorize(actor, t.UserID); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, actor auth.User, in CreateInput) (Task, error) {
	if actor.ID == "" {
		return Task{}, apperr.Unauthenticated("authentication required")
	}
	return s.create(ctx, actor.ID, in)
}

func (s *Service) CreateForUser(ctx context.Context, actor auth.User, userID string, in CreateInput) (Task, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return Task{}, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return Task{}, err
	}
	return s.create(ctx, userID, in)
}

func (s *Service) create(ctx context.Context, ownerID string, in CreateInput) (Task, error) {
	t := Task{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: emptyToNil(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		ImageURL:    emptyToNil(in.ImageURL),
		UserID:      ownerID,
		CreatedAt:   s.nowFunc().UTC(),
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := validate(t); err != nil {
		return Task{}, err
	}

	created, err := s.store.Insert(ctx, t)
	if err != nil {
		if errors.Is(err, ErrOwnerNotFound) {
			return Task{}, apperr.NotFound("user not found")
		}
		return Task{}, apperr.Internal("insert task", err)
	}
	return created, nil
}

// Update applies a partial update after re-reading the task's owner.
func (s *Service) Update(ctx context.Context, actor auth.User, id string, in UpdateInput) (Task, error) {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return Task{}, err
	}
	return s.apply(ctx, t, in)
}

// UpdateForUser is the admin variant addressed by owner and task id. The
// task must belong to userID.
func (s *Service) UpdateForUser(ctx context.Context, actor auth.User, userID, taskID string, in UpdateInput) (Task, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return Task{}, err
	}
	t, err := s.load(ctx, actor, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.UserID != userID {
		return Task{}, apperr.Validation(apperr.FieldError{Field: "userId", Message: "task does not belong to this user"})
	}
	return s.apply(ctx, t, in)
}

func (s *Service) apply(ctx context.Context, t Task, in UpdateInput) (Task, error) {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = emptyToNil(in.Description)
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.ImageURL != nil {
		t.ImageURL = emptyToNil(in.ImageURL)
	}
	if err := validate(t); err != nil {
		return Task{}, err
	}

	updated, err := s.store.Update(ctx, t)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Task{}, apperr.NotFound("task not found")
		}
		return Task{}, apperr.Internal("update task", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.User, id string) error {
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, t.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("task not found")
		}
		return apperr.Internal("delete task", err)
	}
	return nil
}

// AttachImage uploads data as the task's image and records its URL.
func (s *Service) AttachImage(ctx context.Context, actor auth.User, id string, data []byte) (Task, error) {
	if s.images == nil {
		return Task{}, apperr.Internal("image upload unavailable", ErrImagesDisabled)
	}
	t, err := s.load(ctx, actor, id)
	if err != nil {
		return Task{}, err
	}

	url, err := s.images.PutTaskImage(ctx, t.ID, data)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return Task{}, err
		}
		return Task{}, apperr.Internal("upload task image", err)
	}
	return s.apply(ctx, t, UpdateInput{ImageURL: &url})
}

func validate(t Task) error {
	var fields []apperr.FieldError
	if n := utf8.RuneCountInString(t.Title); n < 1 || n > maxTitleLength {
		fields = append(fields, apperr.FieldError{Field: "title", Message: fmt.Sprintf("must be between 1 and %d characters", maxTitleLength)})
	}
	if t.Description != nil && utf8.RuneCountInString(*t.Description) > maxDescriptionLength {
		fields = append(fields, apperr.FieldError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)})
	}
	if !t.Status.Valid() {
		fields = append(fields, apperr.FieldError{Field: "status", Message: "must be pending, in-progress, or completed"})
	}
	if !t.Priority.Valid() {
		fields = append(fields, apperr.FieldError{Field: "priority", Message: "must be low, medium, or high"})
	}
	if t.ImageURL != nil && len(*t.ImageURL) > maxImageURLLength {
		fields = append(fields, apperr.FieldError{Field: "imageUrl", Message: fmt.Sprintf("must be at most %d characters", maxImageURLLength)})
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

func (q ListQuery) normalized() (page, limit int) {
	page, limit = q.Page, q.Limit
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return page, limit
}

func (q ListQuery) filter() (ListFilter, error) {
	var fields []apperr.FieldError
	if q.Page < 0 || q.Page > maxPage {
		fields = append(fields, apperr.FieldError{Field: "page", Message: fmt.Sprintf("must be between 1 and %d", maxPage)})
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		fields = append(fields, apperr.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)})
	}
	if q.Status != "" && !q.Status.Valid() {
		fields = append(fields, apperr.FieldError{Field: "status", Message: "must be pending, in-progress, or completed"})
	}
	if q.Priority != "" && !q.Priority.Valid() {
		fields = append(fields, apperr.FieldError{Field: "priority", Message: "must be low, medium, or high"})
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		fields = append(fields, apperr.FieldError{Field: "from", Message: "must not be after to"})
	}
	if len(fields) > 0 {
		return ListFilter{}, apperr.Validation(fields...)
	}
	return ListFilter{Status: q.Status, Priority: q.Priority, From: q.From, To: q.To}, nil
}

func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
