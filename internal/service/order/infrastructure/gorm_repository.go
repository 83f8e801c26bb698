// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"takeout/internal/service/order/domain"
)

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误码
const mysqlDuplicateEntry = 1062

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := FromDomainOrder(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return errors.Wrapf(domain.ErrInvalidArgument, "duplicate order number %s", order.Number)
		}
		return domain.Unavailable(err, "create order")
	}
	order.ID = model.ID
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.findOne(ctx, strconv.FormatInt(id, 10), "id = ?", id)
}

func (r *GormOrderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.findOne(ctx, number, "number = ?", number)
}

func (r *GormOrderRepository) findOne(ctx context.Context, key string, query string, arg interface{}) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{Key: key}
		}
		return nil, domain.Unavailable(err, "find order")
	}
	return ToDomainOrder(&model), nil
}

// UpdateIfStatus 执行 UPDATE ... WHERE id = ? AND status = ?，RowsAffected 为 0 表示条件不满足
func (r *GormOrderRepository) UpdateIfStatus(ctx context.Context, order *domain.Order, expected domain.Status) (bool, error) {
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", order.ID, int(expected)).
		Updates(mutableColumns(order))
	if result.Error != nil {
		return false, domain.Unavailable(result.Error, "update order")
	}
	return result.RowsAffected == 1, nil
}

func (r *GormOrderRepository) ListOverdue(ctx context.Context, status domain.Status, before time.Time) ([]*domain.Order, error) {
	var models []*OrderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND order_time < ?", int(status), before).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, domain.Unavailable(err, "list overdue orders")
	}
	return toDomainOrders(models), nil
}

func (r *GormOrderRepository) Search(ctx context.Context, q domain.SearchQuery) ([]*domain.Order, int64, error) {
	tx := r.db.WithContext(ctx).Model(&OrderModel{})
	if q.Status != 0 {
		tx = tx.Where("status = ?", int(q.Status))
	}
	if q.Number != "" {
		tx = tx.Where("number LIKE ?", "%"+q.Number+"%")
	}
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Begin != nil {
		tx = tx.Where("order_time >= ?", *q.Begin)
	}
	if q.End != nil {
		tx = tx.Where("order_time <= ?", *q.End)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, domain.Unavailable(err, "count orders")
	}
	var models []*OrderModel
	err := tx.Order("order_time DESC, id DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, domain.Unavailable(err, "search orders")
	}
	return toDomainOrders(models), total, nil
}

func (r *GormOrderRepository) CountByStatus(ctx context.Context, statuses ...domain.Status) (map[domain.Status]int64, error) {
	var rows []struct {
		Status int
		Total  int64
	}
	values := make([]int, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, int(s))
	}
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Select("status, count(*) AS total").
		Where("status IN ?", values).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.Unavailable(err, "count orders by status")
	}
	counts := make(map[domain.Status]int64, len(statuses))
	for _, s := range statuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Total
	}
	return counts, nil
}

func toDomainOrders(models []*OrderModel) []*domain.Order {
	orders := make([]*domain.Order, len(models))
	for i, m := range models {
		orders[i] = ToDomainOrder(m)
	}
	return orders
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
