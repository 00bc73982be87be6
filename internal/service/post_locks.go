package service

import (
	"hash/fnv"
	"sync"
)

const postLockStripes = 64

// postLocks 按帖子分段加锁。同一帖子的写入从提交到事件入队整体串行，
// 事件 seq 的先后与提交顺序一致。
type postLocks struct {
	stripes [postLockStripes]sync.Mutex
}

// lock returns the unlock func for postID's stripe.
func (l *postLocks) lock(postID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(postID))
	m := &l.stripes[h.Sum32()%postLockStripes]
	m.Lock()
	return m.Unlock
}
