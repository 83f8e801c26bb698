// internal/service/order/domain/actor.go
package domain

import "time"

type ActorKind string

const (
	ActorUser     ActorKind = "user"
	ActorMerchant ActorKind = "merchant"
	ActorSystem   ActorKind = "system"
)

// Actor 是发起操作的身份，由调用方显式传入
type Actor struct {
	ID   int64
	Kind ActorKind
}

// SystemActor 超时消费者和定时扫描使用的身份
var SystemActor = Actor{ID: 0, Kind: ActorSystem}

func UserActor(id int64) Actor     { return Actor{ID: id, Kind: ActorUser} }
func MerchantActor(id int64) Actor { return Actor{ID: id, Kind: ActorMerchant} }

// Audit 审计字段，随每次写入一起落库
type Audit struct {
	ActorID int64
	At      time.Time
}

func NewAudit(actor Actor, at time.Time) Audit {
	return Audit{ActorID: actor.ID, At: at}
}
