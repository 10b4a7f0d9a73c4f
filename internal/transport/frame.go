package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	// FramingLine 每条消息一行，以 '\n' 结尾
	FramingLine = "line"
	// FramingLength 4 字节大端长度前缀
	FramingLength = "length"
)

// Framer 负责在字节流上划分消息边界
type Framer interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
}

// NewFramer 按名称创建分帧器
func NewFramer(framing string, rw io.ReadWriter, maxSize int) (Framer, error) {
	switch framing {
	case FramingLine, "":
		return NewLineCodec(rw, maxSize), nil
	case FramingLength:
		return NewFrameCodec(rw, maxSize), nil
	default:
		return nil, NewTpError(1005, "Invalid framing", framing)
	}
}

// FrameCodec 数据包的编解码器，使用长度前缀帧格式
type FrameCodec struct {
	r       io.Reader
	w       io.Writer
	maxSize int
	readMu  sync.Mutex // 读锁
	writeMu sync.Mutex // 写锁
	bufPool *sync.Pool // 用于复用缓冲区
}

func NewFrameCodec(rw io.ReadWriter, maxSize int) *FrameCodec {
	if maxSize <= 0 {
		maxSize = defaultMaxFrameSize
	}
	return &FrameCodec{
		r:       rw,
		w:       rw,
		maxSize: maxSize,
		bufPool: &sync.Pool{
			New: func() any {
				// 使用 64KB 缓冲区，适合大多数场景
				return make([]byte, 64*1024)
			},
		},
	}
}

// WriteFrame 写入一个帧
func (c *FrameCodec) WriteFrame(payload []byte) error {
	if len(payload) > c.maxSize {
		return NewTpError(1003, "Frame too large", fmt.Sprintf("%d bytes", len(payload)))
	}
	// 头部与内容合并为一次写入，避免并发写交错
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.w.Write(frame)
	return err
}

// ReadFrame 读取一个帧
func (c *FrameCodec) ReadFrame() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	header := make([]byte, 4)
	// 使用 io.ReadFull 确保读取完整的 4 字节长度
	if _, err := io.ReadFull(c.r, header); err != nil {
		return nil, err
	}
	// 解析帧长度
	length := int(binary.BigEndian.Uint32(header))
	if length > c.maxSize {
		return nil, NewTpError(1003, "Frame too large", fmt.Sprintf("%d bytes", length))
	}

	// 使用 bufPool 获取一个缓冲区，避免频繁分配
	buf := c.bufPool.Get().([]byte)
	if cap(buf) < length {
		// 容量不足，创建新缓冲区（旧缓冲区丢弃，由GC处理）
		buf = make([]byte, length)
	} else {
		// 复用缓冲区，调整长度
		buf = buf[:length]
	}
	if _, err := io.ReadFull(c.r, buf); err != nil {
		c.bufPool.Put(buf[:cap(buf)]) // 读取失败，放回缓冲池
		return nil, err
	}
	// 创建数据的拷贝以确保安全（调用者可以持有）
	data := make([]byte, length)
	copy(data, buf)

	// 放回缓冲区（重置为最大容量）
	c.bufPool.Put(buf[:cap(buf)])
	return data, nil
}

// LineCodec 以换行分隔的 JSON 文本流。空行被跳过。
type LineCodec struct {
	r       *bufio.Reader
	w       io.Writer
	maxSize int
	readMu  sync.Mutex
	writeMu sync.Mutex
}

func NewLineCodec(rw io.ReadWriter, maxSize int) *LineCodec {
	if maxSize <= 0 {
		maxSize = defaultMaxFrameSize
	}
	return &LineCodec{r: bufio.NewReaderSize(rw, 64*1024), w: rw, maxSize: maxSize}
}

// ReadFrame 读取一行，不含结尾的换行符
func (c *LineCodec) ReadFrame() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		var line []byte
		for {
			chunk, err := c.r.ReadSlice('\n')
			if len(line)+len(chunk) > c.maxSize+1 {
				// 丢弃这一行的剩余部分
				for err == bufio.ErrBufferFull {
					_, err = c.r.ReadSlice('\n')
				}
				return nil, NewTpError(1003, "Frame too large", fmt.Sprintf("> %d bytes", c.maxSize))
			}
			line = append(line, chunk...)
			if err == bufio.ErrBufferFull {
				continue
			}
			if err != nil {
				if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
					return bytes.TrimSpace(line), nil
				}
				return nil, err
			}
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
	}
}

// WriteFrame 写入一行，payload 中不能包含换行符
func (c *LineCodec) WriteFrame(payload []byte) error {
	if len(payload) > c.maxSize {
		return NewTpError(1003, "Frame too large", fmt.Sprintf("%d bytes", len(payload)))
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return NewTpError(1005, "Invalid framing", "newline in payload")
	}
	frame := make([]byte, len(payload)+1)
	copy(frame, payload)
	frame[len(payload)] = '\n'
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.w.Write(frame)
	return err
}
