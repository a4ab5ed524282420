package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// 帧格式：[4字节大端 Tag][若干字段]
// 字段要么是裸 4 字节大端 u32（无前缀），要么是一条带 4 字节大端长度前缀的
// msgpack 结构化记录。一个 WebSocket 二进制消息恰好承载一帧。

const (
	// MaxRecordSize 单条结构化记录的上限，防御异常长度前缀
	MaxRecordSize = 1 << 20
)

var (
	// ErrShortFrame 帧内剩余字节不足以读出请求的字段
	ErrShortFrame = errors.New("protocol: short frame")
	// ErrBadLength 记录长度前缀非法（超限或超出帧尾）
	ErrBadLength = errors.New("protocol: bad record length")
)

// FrameWriter 组装一帧；错误粘滞，Bytes 时统一返回
type FrameWriter struct {
	buf []byte
	err error
}

// NewFrame 以指定标签开始一帧
func NewFrame(tag Tag) *FrameWriter {
	w := &FrameWriter{buf: make([]byte, 0, 64)}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(tag))
	return w
}

// AppendU32 追加一个裸大端 u32 标量
func (w *FrameWriter) AppendU32(v uint32) *FrameWriter {
	if w.err != nil {
		return w
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return w
}

// AppendRecord 追加一条带长度前缀的 msgpack 记录
func (w *FrameWriter) AppendRecord(v any) *FrameWriter {
	if w.err != nil {
		return w
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("protocol: encode record: %w", err)
		return w
	}
	if len(data) > MaxRecordSize {
		w.err = ErrBadLength
		return w
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(data)))
	w.buf = append(w.buf, data...)
	return w
}

// Bytes 返回完整帧；任何一步出错则帧不可用
func (w *FrameWriter) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// FrameReader 按字段顺序解析一帧收到的消息
type FrameReader struct {
	buf []byte
	off int
}

// NewReader 包装一条已收到的完整帧
func NewReader(b []byte) *FrameReader {
	return &FrameReader{buf: b}
}

// ReadTag 读出帧首标签
func (r *FrameReader) ReadTag() (Tag, error) {
	v, err := r.ReadU32()
	return Tag(v), err
}

// ReadU32 读出一个裸大端 u32；不足 4 字节视为对端异常
func (r *FrameReader) ReadU32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, ErrShortFrame
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// ReadRecord 读出一条带长度前缀的记录并解码到 out
func (r *FrameReader) ReadRecord(out any) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	if n > MaxRecordSize || r.off+int(n) > len(r.buf) {
		return ErrBadLength
	}
	data := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("protocol: decode record: %w", err)
	}
	return nil
}

// Remaining 帧内尚未消费的字节数
func (r *FrameReader) Remaining() int {
	return len(r.buf) - r.off
}
