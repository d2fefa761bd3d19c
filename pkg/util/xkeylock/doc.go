// Package xkeylock 提供按 key 互斥的进程内锁。
//
// 同一 key 的 Lock 互斥，不同 key 互不阻塞。key 表按 xxhash 分片，
// 没有持有者和等待者的 key 立即回收，因此 key 空间可以无界。
//
//	kl, _ := xkeylock.New()
//	unlock, err := kl.Lock(ctx, "orders-producer")
//	if err != nil {
//		return err
//	}
//	defer unlock()
package xkeylock
