package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
)

func newBulkFixture(cfgs ...*model.TagConfig) (*allocatorFixture, *BulkOperator) {
	f := newAllocatorFixture(AllocatorOptions{}, cfgs...)
	ctx := context.Background()
	_ = f.tags.Create(ctx, &model.Tag{Value: "OLD-1", OwnerType: "equipment", OwnerID: "1"})
	_ = f.tags.Create(ctx, &model.Tag{Value: "OLD-2", OwnerType: "vehicle", OwnerID: "2"})
	_ = f.tags.Create(ctx, &model.Tag{Value: "OLD-3", OwnerType: "equipment", OwnerID: "3"})
	return f, NewBulkOperator(f.tags, f.alloc, NewRegistry(), f.pub, discardLogger())
}

func TestBulkRegenerate_PartialFailure(t *testing.T) {
	f, bulk := newBulkFixture(equipmentConfig(model.FormatSequential, 3))
	ctx := context.Background()

	// 2 — тип без конфигурации, 99 — несуществующий тег, 1 — повтор
	result, err := bulk.Regenerate(ctx, []int64{1, 2, 3, 99, 1})
	if err != nil {
		t.Fatalf("Regenerate() ошибка: %v", err)
	}

	if len(result.Regenerated) != 2 {
		t.Fatalf("Regenerated = %d, ожидается 2", len(result.Regenerated))
	}
	want := []BulkRegenerated{
		{ID: 1, OldValue: "OLD-1", NewValue: "EQ-001"},
		{ID: 3, OldValue: "OLD-3", NewValue: "EQ-002"},
	}
	for i, w := range want {
		if result.Regenerated[i] != w {
			t.Errorf("Regenerated[%d] = %+v, ожидается %+v", i, result.Regenerated[i], w)
		}
	}

	if len(result.Failed) != 2 {
		t.Fatalf("Failed = %d, ожидается 2", len(result.Failed))
	}
	if result.Failed[0].ID != 2 || result.Failed[1].ID != 99 {
		t.Errorf("Failed = %+v, ожидаются теги 2 и 99", result.Failed)
	}

	tag, _ := f.tags.GetByID(ctx, 2)
	if tag.Value != "OLD-2" {
		t.Errorf("тег 2 = %q, значение не должно меняться", tag.Value)
	}
	if n := len(f.pub.byKind(events.KindTagUpdated)); n != 2 {
		t.Errorf("событий TagUpdated = %d, ожидается 2", n)
	}
}

func TestBulkRegenerate_StoreUnavailable(t *testing.T) {
	f, bulk := newBulkFixture(equipmentConfig(model.FormatSequential, 3))
	f.counters.err = fmt.Errorf("%w: connection refused", repository.ErrUnavailable)

	_, err := bulk.Regenerate(context.Background(), []int64{1, 3})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Regenerate() ошибка = %v, ожидается ErrStoreUnavailable", err)
	}
	if n := len(f.pub.byKind(events.KindTagUpdated)); n != 0 {
		t.Errorf("событий TagUpdated = %d, ожидается 0", n)
	}
}

func TestBulkRegenerate_UsesResolver(t *testing.T) {
	f := newAllocatorFixture(AllocatorOptions{}, equipmentConfig(model.FormatBranchBased, 3))
	_ = f.tags.Create(context.Background(), &model.Tag{Value: "OLD", OwnerType: "equipment", OwnerID: "1"})

	r := NewRegistry()
	_, _ = r.Register(EntityType{
		Name: "equipment",
		Resolve: func(_ context.Context, id string) (model.Entity, error) {
			return model.BranchEntity{EntityRef: model.EntityRef{Type: "equipment", ID: id}, Branch: "5"}, nil
		},
	})
	bulk := NewBulkOperator(f.tags, f.alloc, r, f.pub, discardLogger())

	result, err := bulk.Regenerate(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("Regenerate() ошибка: %v", err)
	}
	if len(result.Regenerated) != 1 || result.Regenerated[0].NewValue != "EQ-001-5" {
		t.Errorf("Regenerate() = %+v, ожидается EQ-001-5", result)
	}
}

func TestBulkResult_JSON(t *testing.T) {
	_, bulk := newBulkFixture(equipmentConfig(model.FormatSequential, 3))

	result, err := bulk.Regenerate(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Regenerate() ошибка: %v", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() ошибка: %v", err)
	}

	var decoded map[string][]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() ошибка: %v", err)
	}
	if len(decoded) != 2 || decoded["regenerated"] == nil || decoded["failed"] == nil {
		t.Fatalf("ключи ответа = %s, ожидаются regenerated и failed", data)
	}
	for _, key := range []string{"id", "oldValue", "newValue"} {
		if _, ok := decoded["regenerated"][0][key]; !ok {
			t.Errorf("regenerated[0] без ключа %q: %s", key, data)
		}
	}
	for _, key := range []string{"id", "error"} {
		if _, ok := decoded["failed"][0][key]; !ok {
			t.Errorf("failed[0] без ключа %q: %s", key, data)
		}
	}
	if strings.Contains(string(data), "tagId") {
		t.Errorf("ответ содержит устаревший ключ tagId: %s", data)
	}
}

// connPool — пул соединений фиксированного размера.
type connPool chan struct{}

func (p connPool) acquire(ctx context.Context) error {
	select {
	case p <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: пул исчерпан: %w", repository.ErrUnavailable, ctx.Err())
	}
}

func (p connPool) release() { <-p }

// pooledTags занимает соединение пула на чтение и на всю транзакцию.
type pooledTags struct {
	*fakeTagRepo
	pool connPool
	inTx bool
}

func (r pooledTags) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	if !r.inTx {
		if err := r.pool.acquire(ctx); err != nil {
			return nil, err
		}
		defer r.pool.release()
	}
	return r.fakeTagRepo.GetByID(ctx, id)
}

func (r pooledTags) WithinTx(ctx context.Context, fn func(repo repository.TagRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := r.pool.acquire(ctx); err != nil {
		return err
	}
	defer r.pool.release()
	return fn(pooledTags{fakeTagRepo: r.fakeTagRepo, pool: r.pool, inTx: true})
}

// pooledCounters — каждый вызов счётчика берёт своё соединение пула.
type pooledCounters struct {
	*fakeCounterRepo
	pool connPool
}

func (c pooledCounters) NextSequence(ctx context.Context, configID string, lockTimeout time.Duration) (*model.TagConfig, error) {
	if err := c.pool.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.pool.release()
	return c.fakeCounterRepo.NextSequence(ctx, configID, lockTimeout)
}

func (c pooledCounters) NextBranchSequence(ctx context.Context, configID, ownerType, branchID string, lockTimeout time.Duration) (*model.TagConfig, uint64, error) {
	if err := c.pool.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer c.pool.release()
	return c.fakeCounterRepo.NextBranchSequence(ctx, configID, ownerType, branchID, lockTimeout)
}

func newPooledBulk(size int) (*allocatorFixture, *BulkOperator) {
	f, _ := newBulkFixture(equipmentConfig(model.FormatSequential, 3))
	pool := make(connPool, size)
	alloc := NewAllocator(f.svc, pooledCounters{fakeCounterRepo: f.counters, pool: pool}, f.tags, f.pub, AllocatorOptions{}, discardLogger())
	alloc.now = f.alloc.now
	tags := pooledTags{fakeTagRepo: f.tags, pool: pool}
	return f, NewBulkOperator(tags, alloc, NewRegistry(), f.pub, discardLogger())
}

func TestBulkRegenerate_SingleConnectionPool(t *testing.T) {
	f, bulk := newPooledBulk(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := bulk.Regenerate(ctx, []int64{1, 3})
	if err != nil {
		t.Fatalf("Regenerate() ошибка: %v", err)
	}
	if len(result.Regenerated) != 2 || len(result.Failed) != 0 {
		t.Fatalf("Regenerate() = %+v, ожидается 2 перегенерированных тега", result)
	}
	for id, want := range map[int64]string{1: "EQ-001", 3: "EQ-002"} {
		if tag, _ := f.tags.GetByID(ctx, id); tag.Value != want {
			t.Errorf("тег %d = %q, ожидается %q", id, tag.Value, want)
		}
	}
}

func TestBulkRegenerate_ConcurrentCallsShareSmallPool(t *testing.T) {
	f, bulk := newPooledBulk(2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, ids := range [][]int64{{1}, {3}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = bulk.Regenerate(ctx, ids)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("вызов %d: Regenerate() ошибка: %v", i, err)
		}
	}
	if f.counters.calls != 2 {
		t.Errorf("вызовов счётчика = %d, ожидается 2", f.counters.calls)
	}
}

func TestBulkDelete(t *testing.T) {
	f, bulk := newBulkFixture()

	n, err := bulk.Delete(context.Background(), []int64{1, 3, 3, 42})
	if err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if n != 2 {
		t.Errorf("удалено = %d, ожидается 2", n)
	}
	if f.tags.len() != 1 {
		t.Errorf("осталось тегов = %d, ожидается 1", f.tags.len())
	}
	if got := len(f.pub.byKind(events.KindTagDeleted)); got != 2 {
		t.Errorf("событий TagDeleted = %d, ожидается 2", got)
	}
}

func TestBulkDelete_StoreError(t *testing.T) {
	f, bulk := newBulkFixture()
	f.tags.deleteErr = fmt.Errorf("%w: timeout", repository.ErrUnavailable)

	if _, err := bulk.Delete(context.Background(), []int64{1}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Delete() ошибка = %v, ожидается ErrStoreUnavailable", err)
	}
}

func TestUniqueIDs(t *testing.T) {
	got := uniqueIDs([]int64{3, 1, 3, 2, 1})
	if fmt.Sprint(got) != "[3 1 2]" {
		t.Errorf("uniqueIDs() = %v, ожидается [3 1 2]", got)
	}
	if got := uniqueIDs(nil); len(got) != 0 {
		t.Errorf("uniqueIDs(nil) = %v", got)
	}
}
