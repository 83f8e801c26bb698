// internal/service/push/message.go
package push

import "encoding/json"

// Message 推送给商家端的消息，type: 1 来单提醒 2 客户催单 3 超时自动取消
type Message struct {
	Type    int    `json:"type"`
	OrderID int64  `json:"orderId"`
	Content string `json:"content"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
