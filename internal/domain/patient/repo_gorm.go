package patient

import (
	"context"

	"gorm.io/gorm"
)

type gormRepo struct {
	db *gorm.DB
}

// NewGormRepository creates the gorm-backed repository. gorm's soft
// delete scope keeps deleted rows out of all queries automatically.
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepo{db: db}
}

func (r *gormRepo) List(ctx context.Context) ([]*Patient, error) {
	var out []*Patient
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepo) GetByID(ctx context.Context, id uint) (*Patient, error) {
	var p Patient
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepo) Create(ctx context.Context, p *Patient) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepo) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&Patient{}).Where("id = ?", id).Updates(fields).Error
}

func (r *gormRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&Patient{}, id).Error
}

func (r *gormRepo) EmailInUse(ctx context.Context, email string, excludeID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Patient{}).
		Where("email = ? AND id <> ?", email, excludeID).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepo) SSNInUse(ctx context.Context, ssn string, excludeID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Patient{}).
		Where("ssn = ? AND id <> ?", ssn, excludeID).
		Count(&n).Error
	return n > 0, err
}
