// Package queue 提供每连接一份的命令队列：任意线程入队，
// 只有拥有该连接的调度循环出队执行，保证套接字单写者。
package queue

import "sync"

// Command 延迟执行的工作单元；入队时必须只捕获值拷贝，
// 不允许引用入队方的栈帧（跨线程执行时引用会悬空）
type Command func()

// Queue 互斥锁保护的严格 FIFO + 计数式唤醒通道。
// 唤醒通道暴露给调度循环，与套接字就绪一起 select。
type Queue struct {
	mu   sync.Mutex
	fifo []Command
	wake chan struct{}
}

// New 创建空队列；唤醒通道带缓冲，push 侧永不阻塞
func New() *Queue {
	return &Queue{wake: make(chan struct{}, 128)}
}

// Push 入队并唤醒一次。缓冲满时丢弃唤醒信号是安全的：
// 出队侧总是先检查 FIFO 再阻塞，合并的唤醒不会滞留命令
func (q *Queue) Push(cmd Command) {
	q.mu.Lock()
	q.fifo = append(q.fifo, cmd)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryPop 非阻塞取出最旧命令
func (q *Queue) TryPop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return nil, false
	}
	cmd := q.fifo[0]
	q.fifo[0] = nil
	q.fifo = q.fifo[1:]
	return cmd, true
}

// Pop 阻塞取出最旧命令；stop 关闭时返回 false，
// 保证销毁队列不会把并发阻塞的出队方卡死
func (q *Queue) Pop(stop <-chan struct{}) (Command, bool) {
	for {
		if cmd, ok := q.TryPop(); ok {
			return cmd, true
		}
		select {
		case <-q.wake:
			// 可能是合并/多余的唤醒，回到循环再查一次
		case <-stop:
			return nil, false
		}
	}
}

// Ready 暴露唤醒通道，供调度循环注册进就绪集合
func (q *Queue) Ready() <-chan struct{} {
	return q.wake
}

// Len 当前积压数量
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Drain 取出全部剩余命令但不执行，用于连接拆除时的收尾
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.fifo
	q.fifo = nil
	return out
}
