// Package client 客户端状态消费层：网络循环持续写入、渲染循环无锁读取。
package client

import "sync/atomic"

// DoubleBuffer 双槽缓冲 + 原子选择位。
// 写者只改「非当前」槽，改完调用一次 Publish 翻转——翻转是唯一的
// 发布点，读者因此永远看不到写了一半的槽。
// 约定：单写者（网络循环）；读者每帧通过 Current 解析一次选择位。
type DoubleBuffer[T any] struct {
	slots [2]T
	cur   atomic.Uint32
}

// Current 读者侧：当前槽（一次读取内只解析一次选择位）
func (b *DoubleBuffer[T]) Current() *T {
	return &b.slots[b.cur.Load()&1]
}

// Back 写者侧：非当前槽；写者必须完整填好再 Publish，
// 翻转前槽内可能残留上上次的旧值
func (b *DoubleBuffer[T]) Back() *T {
	return &b.slots[(b.cur.Load()+1)&1]
}

// Publish 单次发布：翻转选择位，把刚写完的槽暴露给读者
func (b *DoubleBuffer[T]) Publish() {
	b.cur.Store((b.cur.Load() + 1) & 1)
}
