// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	Number          string          `gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID          int64           `gorm:"index;not null"`
	Status          int             `gorm:"type:tinyint;not null;index:idx_status_order_time,priority:1"`
	PayStatus       int             `gorm:"type:tinyint;not null;default:0"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Address         string          `gorm:"type:varchar(255)"`
	Remark          string          `gorm:"type:varchar(100)"`
	OrderTime       time.Time       `gorm:"not null;index:idx_status_order_time,priority:2"`
	CheckoutTime    sql.NullTime
	CancelTime      sql.NullTime
	CancelReason    string `gorm:"type:varchar(255)"`
	RejectionReason string `gorm:"type:varchar(255)"`
	DeliveryTime    sql.NullTime
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
	UpdatedBy       int64
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}
