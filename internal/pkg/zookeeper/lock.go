// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot   = "/distributed_locks" // 所有分布式锁的根节点
	nodePrefix = "lock-"
)

// Connect 建立 ZooKeeper 会话。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return conn, nil
}

// DistributedLock 基于临时顺序节点的互斥锁。
// 多副本部署时用来保证同一时刻只有一个实例在执行扫描任务。
type DistributedLock struct {
	conn     *zk.Conn
	path     string // 锁的路径，例如 /distributed_locks/order-payment-sweep
	mu       sync.Mutex
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在。
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		_, err := conn.Create(p, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, errors.Wrapf(err, "create lock node %s", p)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 尝试获取锁，不等待。拿不到时删除自己创建的节点并返回 false。
func (l *DistributedLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockNode != "" {
		return true, nil
	}

	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+nodePrefix, nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "create sequential node")
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, errors.Wrap(err, "list lock children")
	}

	myName := strings.TrimPrefix(nodePath, l.path+"/")
	if lowest(children) == myName {
		l.lockNode = nodePath
		return true, nil
	}

	if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return false, errors.Wrap(err, "delete sequential node")
	}
	return false, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// lowest 按顺序号（节点名最后 10 位）找出最小的子节点。
// protected 节点带有随机 GUID 前缀，不能直接按整个名字排序。
func lowest(children []string) string {
	if len(children) == 0 {
		return ""
	}
	sorted := append([]string(nil), children...)
	sort.Slice(sorted, func(i, j int) bool {
		return sequenceOf(sorted[i]) < sequenceOf(sorted[j])
	})
	return sorted[0]
}

func sequenceOf(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}
