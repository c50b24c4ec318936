package service

import (
	"log"
	"sync"
)

// DigestAssembled 摘要生成完成事件,供通知方消费
// 推送的设备管理和投递由外部协作方负责
type DigestAssembled struct {
	SubscriberID uint   `json:"subscriber_id"`
	Type         string `json:"type"`
	Summary      string `json:"summary"`
}

const EventTypeDailyDigest = "daily_digest"

// Events 类型化事件流,协作方通过Subscribe拿channel订阅
// 取代回调注册,不持有进程级可变单例
type Events struct {
	mu   sync.Mutex
	subs []chan DigestAssembled
}

func NewEvents() *Events {
	return &Events{}
}

// Subscribe 返回一个带缓冲的事件channel
func (e *Events) Subscribe() <-chan DigestAssembled {
	ch := make(chan DigestAssembled, 16)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

// Publish 非阻塞广播,订阅方缓冲满时丢弃并记录
func (e *Events) Publish(event DigestAssembled) {
	e.mu.Lock()
	subs := make([]chan DigestAssembled, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			log.Printf("[Events] 订阅方缓冲已满,丢弃事件 subscriber=%d", event.SubscriberID)
		}
	}
}
