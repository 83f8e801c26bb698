// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// SearchQuery 商家端条件分页查询
type SearchQuery struct {
	Status   Status // 0 表示不限
	Number   string
	UserID   int64
	Begin    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 插入新订单并回填 ID
	Create(ctx context.Context, order *Order) error

	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByNumber(ctx context.Context, number string) (*Order, error)

	// UpdateIfStatus 仅当数据库中的状态仍为 expected 时写入 order 的可变字段。
	// 返回 false 表示条件不满足（已被并发修改），此时没有任何字段被写入。
	UpdateIfStatus(ctx context.Context, order *Order, expected Status) (bool, error)

	// ListOverdue 返回 status 为给定值且下单时间早于 before 的订单
	ListOverdue(ctx context.Context, status Status, before time.Time) ([]*Order, error)

	Search(ctx context.Context, q SearchQuery) ([]*Order, int64, error)

	CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int64, error)
}
