package engine

import (
	"fmt"
	"sync"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Deliver получает исход команды. Вызывается ровно один раз на команду.
type Deliver func(domain.Outcome)

// feedback - одноразовый канал ответа потребителю.
type feedback struct {
	once sync.Once
	fn   Deliver
}

func newFeedback(fn Deliver) *feedback { return &feedback{fn: fn} }

// send доставляет исход, если это еще не сделано. Паника потребителя
// не выходит за границу пайплайна и возвращается как ошибка.
func (f *feedback) send(o domain.Outcome) (fired bool, err error) {
	f.once.Do(func() {
		fired = true
		if f.fn == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("feedback consumer panicked: %v", r)
			}
		}()
		f.fn(o)
	})
	return fired, err
}
