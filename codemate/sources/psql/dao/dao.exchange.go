// codemate/sources/psql/dao/dao.exchange.go
package dao

import (
	"codemate/codemate/sources/psql/models"
	"context"

	"gorm.io/gorm"
)

type ExchangeDAO struct {
	DB *gorm.DB
}

func NewExchangeDAO(db *gorm.DB) *ExchangeDAO {
	return &ExchangeDAO{DB: db}
}

func (dao *ExchangeDAO) Record(ctx context.Context, ex *models.Exchange) error {
	return dao.DB.WithContext(ctx).Create(ex).Error
}

// Recent returns the newest exchanges first.
func (dao *ExchangeDAO) Recent(ctx context.Context, limit int) ([]models.Exchange, error) {
	var out []models.Exchange
	err := dao.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
