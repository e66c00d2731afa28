package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"demandcast/internal/service/forecast/domain"
)

// ProductModel 对应 product 表
type ProductModel struct {
	ProductID    string          `gorm:"type:varchar(64);primaryKey"`
	Name         string          `gorm:"type:varchar(255)"`
	Collection   string          `gorm:"type:varchar(64);index:idx_product_collection"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UpdatedAt    time.Time
}

func (ProductModel) TableName() string {
	return "product"
}

// AutoMigrateCatalog 创建或更新产品表
func AutoMigrateCatalog(db *gorm.DB) error {
	return db.AutoMigrate(&ProductModel{})
}

// GormProductCatalog 是 domain.ProductCatalog 的 MySQL 实现
type GormProductCatalog struct {
	db *gorm.DB
}

func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

func (c *GormProductCatalog) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var m ProductModel
	err := c.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", productID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query product %s", productID)
	}
	p := toDomainProduct(&m)
	return &p, nil
}

func (c *GormProductCatalog) ListByCollection(ctx context.Context, collection string) ([]domain.Product, error) {
	var models []ProductModel
	if err := c.db.WithContext(ctx).Where("collection = ?", collection).Order("product_id ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "query collection %s", collection)
	}
	out := make([]domain.Product, len(models))
	for i := range models {
		out[i] = toDomainProduct(&models[i])
	}
	return out, nil
}

// Upsert 按主键写入或覆盖产品
func (c *GormProductCatalog) Upsert(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	models := make([]ProductModel, len(products))
	for i, p := range products {
		models[i] = fromDomainProduct(p)
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "collection", "average_price", "updated_at"}),
	}).Create(&models).Error
	return errors.Wrap(err, "upsert product")
}
