package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики событий.
var (
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_events_published_total",
		Help: "Общее количество опубликованных событий тегов.",
	}, []string{"kind"})
	eventHandlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_event_handler_errors_total",
		Help: "Общее количество ошибок обработчиков событий.",
	}, []string{"kind"})
)

// Handler — обработчик события. Ошибка логируется и не влияет на операцию.
type Handler func(ctx context.Context, ev Event) error

// Publisher — публикация событий (реализуется Notifier).
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Notifier — синхронная доставка событий подписчикам внутри процесса.
// Обработчики вызываются в порядке подписки, сразу после записи в хранилище.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	logger   *slog.Logger
}

// NewNotifier создаёт Notifier без подписчиков.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		handlers: make(map[Kind][]Handler),
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Subscribe подписывает обработчик на события одного типа.
func (n *Notifier) Subscribe(kind Kind, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[kind] = append(n.handlers[kind], h)
}

// SubscribeAll подписывает обработчик на все события.
func (n *Notifier) SubscribeAll(h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, h)
}

// Publish доставляет событие. Паника или ошибка обработчика не прерывает
// доставку остальным и не возвращается вызывающему коду.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.handlers[ev.Kind()])+len(n.all))
	handlers = append(handlers, n.handlers[ev.Kind()]...)
	handlers = append(handlers, n.all...)
	n.mu.RUnlock()

	eventsPublishedTotal.WithLabelValues(string(ev.Kind())).Inc()

	for _, h := range handlers {
		if err := n.invoke(ctx, h, ev); err != nil {
			eventHandlerErrorsTotal.WithLabelValues(string(ev.Kind())).Inc()
			n.logger.Error("Ошибка обработчика события",
				slog.String("kind", string(ev.Kind())),
				slog.String("event_id", ev.Metadata().ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (n *Notifier) invoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в обработчике: %v", r)
		}
	}()
	return h(ctx, ev)
}
