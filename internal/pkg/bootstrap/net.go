package bootstrap

import (
	"net"

	"github.com/pkg/errors"
)

// GetOutboundIP 返回本机对外通信使用的 IP，用于服务注册。
// UDP "连接" 不会真正发包，只是让内核选出路由。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "dial udp")
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return addr.IP.String(), nil
}
