// Package xlru 提供容量有界、带过期时间的 LRU 集合。
//
// Set 只记录 key 是否"最近确认过"，不存值。TTL 从 Add 开始计算，
// 重复 Add 会刷新；Contains 不刷新。TTL > 0 时底层 expirable.LRU
// 会启动清理 goroutine，用完必须 Close。
package xlru
