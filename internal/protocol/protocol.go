package protocol

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// Codec кодирует полезную нагрузку сообщения перед передачей.
// Реализация подключаемая; по умолчанию используется snappy.
type Codec interface {
	// Encode сжимает полезную нагрузку.
	Encode(data []byte) ([]byte, error)
	// Decode распаковывает полезную нагрузку.
	Decode(data []byte) ([]byte, error)
	// Name возвращает имя кодека для поля сообщения.
	Name() string
}

// SnappyCodec реализует Codec поверх github.com/golang/snappy.
type SnappyCodec struct{}

// Encode сжимает данные snappy.
func (SnappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decode распаковывает snappy-данные.
func (SnappyCodec) Decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

// Name возвращает имя кодека.
func (SnappyCodec) Name() string { return "snappy" }

// Message кадр протокола синхронизации.
type Message struct {
	Payload    []byte `json:"payload"`
	Codec      string `json:"codec,omitempty"`
	Seq        uint64 `json:"seq"`
	SentAt     int64  `json:"sent_at"`
	Compressed bool   `json:"compressed"`
}

// Config конфигурация канала протокола.
type Config struct {
	// CompressThreshold минимальный размер полезной нагрузки (в байтах),
	// начиная с которого сообщение сжимается.
	CompressThreshold int
	// SeenWindow размер окна дедупликации входящих сообщений.
	SeenWindow int
}

// DefaultConfig returns default protocol channel configuration
func DefaultConfig() Config {
	return Config{
		CompressThreshold: 1024,
		SeenWindow:        1024,
	}
}

// Channel транспортно-независимый framing-слой: нумерует исходящие
// сообщения, отслеживает неподтвержденные отправки для ретрансляции и
// отбрасывает входящие дубликаты, обеспечивая at-most-once доставку
// приложению поверх at-least-once транспорта.
type Channel struct {
	codec       Codec
	unacked     map[uint64]*Message
	seen        map[uint64]struct{}
	seenOrder   []uint64
	pendingAcks []uint64
	cfg         Config
	nextSeq     uint64
	mu          sync.Mutex
}

// NewChannel creates a protocol channel with the given codec
// A nil codec defaults to snappy
func NewChannel(cfg Config, codec Codec) *Channel {
	if codec == nil {
		codec = SnappyCodec{}
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = 1024
	}
	if cfg.SeenWindow <= 0 {
		cfg.SeenWindow = 1024
	}
	return &Channel{
		codec:   codec,
		cfg:     cfg,
		unacked: make(map[uint64]*Message),
		seen:    make(map[uint64]struct{}),
	}
}

// Send формирует исходящее сообщение: присваивает следующий sequence
// number, при превышении порога размера сжимает полезную нагрузку.
// Сообщение отслеживается как неподтвержденное до вызова Ack.
func (c *Channel) Send(payload []byte) (*Message, error) {
	msg := &Message{
		Payload: payload,
		SentAt:  time.Now().UnixMilli(),
	}

	if len(payload) >= c.cfg.CompressThreshold {
		encoded, err := c.codec.Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		msg.Payload = encoded
		msg.Compressed = true
		msg.Codec = c.codec.Name()
	}

	c.mu.Lock()
	c.nextSeq++
	msg.Seq = c.nextSeq
	c.unacked[msg.Seq] = msg
	c.mu.Unlock()

	return msg, nil
}

// Receive обрабатывает входящее сообщение: декодирует полезную нагрузку,
// затем проверяет дубликат по sequence number. Подтверждение планируется
// немедленно в обоих случаях. Возвращает полезную нагрузку и признак
// дубликата (duplicate == true - сообщение уже доставлялось приложению).
func (c *Channel) Receive(msg *Message) ([]byte, bool, error) {
	payload := msg.Payload

	// Декодирование строго до проверки дубликата
	if msg.Compressed {
		decoded, err := c.codec.Decode(msg.Payload)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decode payload: %w", err)
		}
		payload = decoded
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Ack планируется даже для дубликата: потерянный ack - обычная
	// причина повторной доставки
	c.pendingAcks = append(c.pendingAcks, msg.Seq)

	if _, dup := c.seen[msg.Seq]; dup {
		return payload, true, nil
	}

	c.seen[msg.Seq] = struct{}{}
	c.seenOrder = append(c.seenOrder, msg.Seq)
	if len(c.seenOrder) > c.cfg.SeenWindow {
		oldest := c.seenOrder[0]
		c.seenOrder = c.seenOrder[1:]
		delete(c.seen, oldest)
	}

	return payload, false, nil
}

// Ack подтверждает доставку исходящего сообщения.
func (c *Channel) Ack(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unacked, seq)
}

// Unacked возвращает неподтвержденные сообщения (кандидаты на
// ретрансляцию), упорядоченные по sequence number.
func (c *Channel) Unacked() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Message, 0, len(c.unacked))
	for _, msg := range c.unacked {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// DrainAcks возвращает и очищает накопленные подтверждения для отправки
// удаленной стороне.
func (c *Channel) DrainAcks() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	acks := c.pendingAcks
	c.pendingAcks = nil
	return acks
}
