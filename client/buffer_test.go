package client

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type view struct {
	Seq   int
	Items []int
}

// TestPublishFlips 发布前读者看不到背面写入，发布后一次性可见
func TestPublishFlips(t *testing.T) {
	var b DoubleBuffer[view]

	back := b.Back()
	back.Seq = 1
	back.Items = []int{10, 20}

	// 尚未发布：正面仍是零值
	assert.Zero(t, b.Current().Seq)
	assert.Nil(t, b.Current().Items)

	b.Publish()
	cur := b.Current()
	assert.Equal(t, 1, cur.Seq)
	assert.Equal(t, []int{10, 20}, cur.Items)
}

// TestBackWritesDoNotTouchCurrent 翻转后的背面槽可以随意涂改，
// 读者持有的正面槽不受影响
func TestBackWritesDoNotTouchCurrent(t *testing.T) {
	var b DoubleBuffer[view]

	b.Back().Seq = 1
	b.Publish()
	cur := b.Current()
	require.Equal(t, 1, cur.Seq)

	b.Back().Seq = 99
	assert.Equal(t, 1, cur.Seq)
	assert.Equal(t, 1, b.Current().Seq)
}

// TestBackRetainsStaleValue 背面槽残留的是上上次发布的旧值，
// 写者必须完整覆盖而不能做增量修补
func TestBackRetainsStaleValue(t *testing.T) {
	var b DoubleBuffer[view]

	b.Back().Seq = 1
	b.Publish() // 槽 B 正面
	b.Back().Seq = 2
	b.Publish() // 槽 A 正面

	// 背面此刻是装着 Seq=1 的旧槽
	assert.Equal(t, 1, b.Back().Seq)
	assert.Equal(t, 2, b.Current().Seq)
}

// TestAlternation 连续发布在两个槽之间交替
func TestAlternation(t *testing.T) {
	var b DoubleBuffer[int]
	for i := 1; i <= 10; i++ {
		*b.Back() = i
		b.Publish()
		assert.Equal(t, i, *b.Current())
	}
}

// TestConcurrentReaderNeverSeesTornView 写者持续发布成组字段
// （Items 两个元素都由 Seq 推导），并发读者每次经 Current 读到的
// 组合都必须自洽：要么整组旧值，要么整组新值，绝无混搭
func TestConcurrentReaderNeverSeesTornView(t *testing.T) {
	var b DoubleBuffer[view]
	stop := make(chan struct{})
	var torn atomic.Int64

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			cur := b.Current()
			seq, items := cur.Seq, cur.Items
			switch {
			case seq == 0 && len(items) == 0:
				// 初始零值槽
			case len(items) == 2 && items[0] == seq && items[1] == seq*2:
				// 完整的一次发布
			default:
				torn.Add(1)
				return
			}
		}
	}()

	for i := 1; i <= 5000; i++ {
		back := b.Back()
		back.Seq = i
		// 每次发布全新底层数组，两个槽之间不共享任何切片
		back.Items = []int{i, i * 2}
		b.Publish()
		runtime.Gosched()
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, torn.Load(), "reader observed fields from different publishes")
}

// TestCopySliceIndependence 拷贝后修改源切片不影响目标
func TestCopySliceIndependence(t *testing.T) {
	src := []int{1, 2, 3}
	dst := copySlice(nil, src)
	require.Equal(t, src, dst)

	src[0] = 42
	assert.Equal(t, 1, dst[0])
}

// TestCopySliceReusesCapacity 容量够用时不重新分配，且长度收缩正确
func TestCopySliceReusesCapacity(t *testing.T) {
	dst := make([]int, 8)
	src := []int{7, 8}
	out := copySlice(dst, src)

	assert.Equal(t, src, out)
	assert.Len(t, out, 2)
	// 复用原底层数组
	assert.Equal(t, 8, cap(out))

	// 空源：输出长度为零
	out = copySlice(out, nil)
	assert.Empty(t, out)
}
