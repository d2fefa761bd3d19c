// Package util 存放与业务无关的小工具包。
//
//   - xjson: 命令行与调试输出的 JSON 格式化
//   - xkeylock: 按 key 分片的进程内互斥锁，Registry 用它串行化同一身份的构建与释放
//   - xlru: 带 TTL 的 LRU 集合，记录已确认存在的死信主题
package util
