// Package userfeed доставляет снимки записей пользователей подписчикам.
// Источником изменений служит очередь RabbitMQ, раздача внутри процесса
// выполняется через Broker.
package userfeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/magabrotheeeer/storefront-entitlements/internal/models"
)

// ErrClosed возвращается при публикации в закрытый Broker.
var ErrClosed = errors.New("userfeed: broker closed")

type subscription struct {
	userUID string
	ch      chan models.UserSnapshot
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Broker раздаёт снимки пользователей подписчикам.
// Подписка на пустой UID получает изменения всех пользователей.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	next   uint64
	buffer int
	closed bool

	// closing выставляется до освобождения подписок в Close
	closing atomic.Bool
}

// NewBroker создаёт Broker, buffer задаёт размер буфера канала каждой подписки.
func NewBroker(buffer int) *Broker {
	if buffer < 0 {
		buffer = 0
	}
	return &Broker{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
	}
}

// Subscribe возвращает поток снимков пользователя userUID и функцию отписки.
// После отписки канал больше не получает значений. Канал закрывается при Close.
func (b *Broker) Subscribe(userUID string) (<-chan models.UserSnapshot, func()) {
	sub := &subscription{
		userUID: userUID,
		ch:      make(chan models.UserSnapshot, b.buffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed || b.closing.Load() {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		// сначала освобождаем возможно заблокированного публикатора
		sub.stop()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish доставляет снимок всем подходящим подпискам. Вызов блокируется,
// пока медленный подписчик не примет значение, не отпишется или пока не
// отменён ctx.
func (b *Broker) Publish(ctx context.Context, snapshot models.UserSnapshot) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || b.closing.Load() {
		return ErrClosed
	}

	for _, sub := range b.subs {
		if sub.userUID != "" && sub.userUID != snapshot.UserUID {
			continue
		}
		select {
		case sub.ch <- snapshot:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close закрывает каналы всех подписок. Повторный вызов ничего не делает.
func (b *Broker) Close() {
	b.closing.Store(true)
	b.mu.RLock()
	for _, sub := range b.subs {
		sub.stop()
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
