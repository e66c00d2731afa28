package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"demandcast/internal/service/forecast/domain"
)

const importBatchSize = 500

// GormSalesRepository 从 MySQL 读取历史销量，实现 domain.SalesSource
type GormSalesRepository struct {
	db *gorm.DB
	// Since 非零时只加载该日期之后的数据
	Since time.Time
}

func NewGormSalesRepository(db *gorm.DB) *GormSalesRepository {
	return &GormSalesRepository{db: db}
}

func (r *GormSalesRepository) LoadSales(ctx context.Context) (domain.Frame, error) {
	q := r.db.WithContext(ctx).Model(&SalesFact{}).Order("sale_date ASC").Order("id ASC")
	if !r.Since.IsZero() {
		q = q.Where("sale_date >= ?", r.Since)
	}
	var facts []SalesFact
	if err := q.Find(&facts).Error; err != nil {
		return domain.Frame{}, errors.Wrap(err, "query sales_fact")
	}
	rows := make([]domain.SalesRecord, len(facts))
	for i := range facts {
		rows[i] = toSalesRecord(&facts[i])
	}
	return domain.NewFrame(domain.AllSalesColumns, rows), nil
}

// Import 批量写入一份 Frame（例如从文件导入的历史数据）
func (r *GormSalesRepository) Import(ctx context.Context, frame domain.Frame) (int, error) {
	if !frame.Columns.Has(domain.ColDate | domain.ColProductID) {
		return 0, errors.New("import requires date and product_id columns")
	}
	facts := make([]SalesFact, len(frame.Rows))
	for i, rec := range frame.Rows {
		facts[i] = fromSalesRecord(rec)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(facts, importBatchSize).Error; err != nil {
		return 0, errors.Wrap(err, "insert sales_fact")
	}
	return len(facts), nil
}
