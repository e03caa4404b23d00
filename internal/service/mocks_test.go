package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakeConfigRepo ---

// fakeConfigRepo — in-memory реализация repository.ConfigRepository.
type fakeConfigRepo struct {
	mu             sync.Mutex
	byID           map[string]*model.TagConfig
	getByTypeCalls int
	getErr         error
}

func newFakeConfigRepo(cfgs ...*model.TagConfig) *fakeConfigRepo {
	r := &fakeConfigRepo{byID: make(map[string]*model.TagConfig)}
	for _, c := range cfgs {
		r.byID[c.ID] = c.Clone()
	}
	return r
}

func (r *fakeConfigRepo) Create(_ context.Context, cfg *model.TagConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.EntityType == cfg.EntityType {
			return fmt.Errorf("%w: %s", repository.ErrConflict, cfg.EntityType)
		}
	}
	cfg.CreatedAt = time.Now()
	cfg.UpdatedAt = cfg.CreatedAt
	r.byID[cfg.ID] = cfg.Clone()
	return nil
}

func (r *fakeConfigRepo) GetByID(_ context.Context, id string) (*model.TagConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *fakeConfigRepo) GetByEntityType(_ context.Context, entityType string) (*model.TagConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getByTypeCalls++
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, c := range r.byID {
		if c.EntityType == entityType {
			return c.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeConfigRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.TagConfig, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeConfigRepo) List(_ context.Context, limit, offset int) ([]*model.TagConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*model.TagConfig, 0, len(r.byID))
	for _, c := range r.byID {
		all = append(all, c.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EntityType < all[j].EntityType })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeConfigRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

func (r *fakeConfigRepo) Update(_ context.Context, cfg *model.TagConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[cfg.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, c := range r.byID {
		if id != cfg.ID && c.EntityType == cfg.EntityType {
			return fmt.Errorf("%w: %s", repository.ErrConflict, cfg.EntityType)
		}
	}
	updated := cfg.Clone()
	updated.CurrentNumber = stored.CurrentNumber
	r.byID[cfg.ID] = updated
	cfg.CurrentNumber = stored.CurrentNumber
	return nil
}

func (r *fakeConfigRepo) Reseed(_ context.Context, id string, number uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if number < c.CurrentNumber {
		return fmt.Errorf("%w: счётчик не может уменьшаться", repository.ErrConflict)
	}
	c.CurrentNumber = number
	return nil
}

func (r *fakeConfigRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeConfigRepo) WithinTx(_ context.Context, fn func(repo repository.ConfigRepository) error) error {
	return fn(r)
}

func (r *fakeConfigRepo) current(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id].CurrentNumber
}

// --- fakeTagRepo ---

// fakeTagRepo — in-memory реализация repository.TagRepository.
type fakeTagRepo struct {
	mu        sync.Mutex
	nextID    int64
	tags      map[int64]*model.Tag
	createErr error
	deleteErr error
}

func newFakeTagRepo(tags ...*model.Tag) *fakeTagRepo {
	r := &fakeTagRepo{tags: make(map[int64]*model.Tag)}
	for _, t := range tags {
		cp := *t
		r.tags[cp.ID] = &cp
		if cp.ID > r.nextID {
			r.nextID = cp.ID
		}
	}
	return r
}

func (r *fakeTagRepo) Create(_ context.Context, tag *model.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, t := range r.tags {
		if t.OwnerType == tag.OwnerType && t.OwnerID == tag.OwnerID {
			return fmt.Errorf("%w: у %s/%s уже есть тег", repository.ErrConflict, tag.OwnerType, tag.OwnerID)
		}
	}
	r.nextID++
	tag.ID = r.nextID
	tag.CreatedAt = time.Now()
	tag.UpdatedAt = tag.CreatedAt
	cp := *tag
	r.tags[tag.ID] = &cp
	return nil
}

func (r *fakeTagRepo) GetByID(_ context.Context, id int64) (*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTagRepo) GetByOwner(_ context.Context, ownerType, ownerID string) (*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tags {
		if t.OwnerType == ownerType && t.OwnerID == ownerID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTagRepo) filter(params repository.TagSearchParams) []*model.Tag {
	var result []*model.Tag
	for _, t := range r.tags {
		if params.OwnerType != "" && t.OwnerType != params.OwnerType {
			continue
		}
		if params.Value != "" && !strings.HasPrefix(t.Value, params.Value) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *fakeTagRepo) Search(_ context.Context, params repository.TagSearchParams) ([]*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.filter(params)
	if params.Offset >= len(all) {
		return nil, nil
	}
	all = all[params.Offset:]
	if params.Limit < len(all) {
		all = all[:params.Limit]
	}
	return all, nil
}

func (r *fakeTagRepo) Count(_ context.Context, params repository.TagSearchParams) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filter(params)), nil
}

func (r *fakeTagRepo) UpdateValue(_ context.Context, id int64, value string) (*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Value = value
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (r *fakeTagRepo) DeleteByOwner(_ context.Context, ownerType, ownerID string) (*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}
	for id, t := range r.tags {
		if t.OwnerType == ownerType && t.OwnerID == ownerID {
			delete(r.tags, id)
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTagRepo) DeleteByIDs(_ context.Context, ids []int64) ([]*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}
	var result []*model.Tag
	for _, id := range ids {
		if t, ok := r.tags[id]; ok {
			delete(r.tags, id)
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *fakeTagRepo) MaxBranchSequence(_ context.Context, ownerType, prefix, separator, branchID string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix+separator) + "([0-9]+)" + regexp.QuoteMeta(separator+branchID) + "$")
	var maxSeq uint64
	for _, t := range r.tags {
		if t.OwnerType != ownerType {
			continue
		}
		if m := re.FindStringSubmatch(t.Value); m != nil {
			n, _ := strconv.ParseUint(m[1], 10, 64)
			if n > maxSeq {
				maxSeq = n
			}
		}
	}
	return maxSeq, nil
}

func (r *fakeTagRepo) WithinTx(_ context.Context, fn func(repo repository.TagRepository) error) error {
	return fn(r)
}

func (r *fakeTagRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tags)
}

// --- fakeCounterRepo ---

// fakeCounterRepo — счётчики поверх fakeConfigRepo с мьютексом вместо блокировки строки.
type fakeCounterRepo struct {
	mu       sync.Mutex
	configs  *fakeConfigRepo
	tags     *fakeTagRepo
	branches map[string]uint64
	// lockFailures — сколько первых вызовов завершатся конфликтом блокировки
	lockFailures int
	err          error
	calls        int
}

func newFakeCounterRepo(configs *fakeConfigRepo, tags *fakeTagRepo) *fakeCounterRepo {
	return &fakeCounterRepo{configs: configs, tags: tags, branches: make(map[string]uint64)}
}

func (c *fakeCounterRepo) begin() error {
	c.calls++
	if c.lockFailures > 0 {
		c.lockFailures--
		return fmt.Errorf("%w: lock_timeout", repository.ErrLockConflict)
	}
	return c.err
}

func (c *fakeCounterRepo) NextSequence(_ context.Context, configID string, _ time.Duration) (*model.TagConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(); err != nil {
		return nil, err
	}

	c.configs.mu.Lock()
	defer c.configs.mu.Unlock()
	cfg, ok := c.configs.byID[configID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cfg.CurrentNumber++
	return cfg.Clone(), nil
}

func (c *fakeCounterRepo) NextBranchSequence(ctx context.Context, configID, ownerType, branchID string, _ time.Duration) (*model.TagConfig, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(); err != nil {
		return nil, 0, err
	}

	cfg, err := c.configs.GetByID(ctx, configID)
	if err != nil {
		return nil, 0, err
	}
	key := configID + "/" + branchID
	current, ok := c.branches[key]
	if !ok {
		current, _ = c.tags.MaxBranchSequence(ctx, ownerType, cfg.Prefix, cfg.Separator, branchID)
	}
	current++
	c.branches[key] = current
	return cfg, current, nil
}

// --- recordingPublisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) byKind(kind events.Kind) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []events.Event
	for _, ev := range p.events {
		if ev.Kind() == kind {
			result = append(result, ev)
		}
	}
	return result
}

// --- failingCache ---

type failingCache struct{}

var errCacheDown = errors.New("redis: connection refused")

func (failingCache) Get(context.Context, string) (*model.TagConfig, bool, error) {
	return nil, false, errCacheDown
}
func (failingCache) Set(context.Context, *model.TagConfig) error { return errCacheDown }
func (failingCache) Invalidate(context.Context, string) error { return errCacheDown }
