package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is a typed CRUD surface over one entity table.
// Absent records are reported as ErrRecordNotFound, never as a nil record.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

func (r *Repository[T]) Create(ctx context.Context, record *T) (*T, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Repository[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	res := new(T)
	if err := r.db.WithContext(ctx).First(res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// Update loads the record, applies the mutation and saves every column back.
func (r *Repository[T]) Update(ctx context.Context, id uuid.UUID, apply func(*T)) (*T, error) {
	res, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(res)
	if err = r.db.WithContext(ctx).Save(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) (*T, error) {
	res, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = r.db.WithContext(ctx).Delete(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository[T]) List(ctx context.Context) ([]*T, error) {
	var res []*T
	return res, r.db.WithContext(ctx).Find(&res).Error
}

// FindOne returns the first record matching the non-zero fields of where.
func (r *Repository[T]) FindOne(ctx context.Context, where *T, order ...string) (*T, error) {
	res := new(T)
	if err := r.query(ctx, where, order).First(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository[T]) Find(ctx context.Context, where *T, order ...string) ([]*T, error) {
	var res []*T
	return res, r.query(ctx, where, order).Find(&res).Error
}

func (r *Repository[T]) query(ctx context.Context, where *T, order []string) *gorm.DB {
	tx := r.db.WithContext(ctx).Where(where)
	for _, o := range order {
		tx = tx.Order(o)
	}
	return tx
}
