package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов.
// Все репозитории работают поверх общего состояния под одним мьютексом.
type Store struct {
	mu sync.RWMutex
	st *state
}

type pairKey struct {
	a, b string
}

type state struct {
	users          map[string]domain.User
	usernames      map[string]string
	emails         map[string]string
	userRatings    map[string]domain.UserRating
	userRatingKeys map[string]string

	categories     map[string]domain.Category
	categorySlugs  map[string]string
	products       map[string]domain.Product
	images         map[string]domain.ProductImage
	favorites      map[pairKey]domain.Favorite
	productRatings map[pairKey]domain.ProductRating
	reports        map[string]domain.Report

	offers map[string]domain.Offer

	orders          map[string]domain.Order
	orderNumbers    map[string]string
	history         map[string][]domain.OrderStatusEntry
	shippingMethods map[string]domain.ShippingMethod

	disputes        map[string]domain.Dispute
	disputeMessages map[string][]domain.DisputeMessage

	conversations       map[string]domain.Conversation
	messages            map[string][]domain.Message
	directConversations map[string]domain.DirectConversation
	directMessages      map[string][]domain.Message
	notifications       map[string]domain.Notification

	outbox      map[string]outboxRecord
	outboxSeq   int64
	idempotency map[string]domain.IdempotencyRecord
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: &state{
		users:               make(map[string]domain.User),
		usernames:           make(map[string]string),
		emails:              make(map[string]string),
		userRatings:         make(map[string]domain.UserRating),
		userRatingKeys:      make(map[string]string),
		categories:          make(map[string]domain.Category),
		categorySlugs:       make(map[string]string),
		products:            make(map[string]domain.Product),
		images:              make(map[string]domain.ProductImage),
		favorites:           make(map[pairKey]domain.Favorite),
		productRatings:      make(map[pairKey]domain.ProductRating),
		reports:             make(map[string]domain.Report),
		offers:              make(map[string]domain.Offer),
		orders:              make(map[string]domain.Order),
		orderNumbers:        make(map[string]string),
		history:             make(map[string][]domain.OrderStatusEntry),
		shippingMethods:     make(map[string]domain.ShippingMethod),
		disputes:            make(map[string]domain.Dispute),
		disputeMessages:     make(map[string][]domain.DisputeMessage),
		conversations:       make(map[string]domain.Conversation),
		messages:            make(map[string][]domain.Message),
		directConversations: make(map[string]domain.DirectConversation),
		directMessages:      make(map[string][]domain.Message),
		notifications:       make(map[string]domain.Notification),
		outbox:              make(map[string]outboxRecord),
		idempotency:         make(map[string]domain.IdempotencyRecord),
	}}
}

// Repos возвращает репозитории, каждый вызов которых берёт мьютекс самостоятельно.
func (s *Store) Repos() domain.Repositories {
	return s.repos(nil)
}

// WithinTx держит мьютекс на всё время fn. При ошибке или панике
// изменения откатываются по журналу отмены.
func (s *Store) WithinTx(ctx context.Context, fn func(repos domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txLog{}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(s.repos(tx))
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Store) Close() error { return nil }

func (s *Store) repos(tx *txLog) domain.Repositories {
	v := view{s: s, tx: tx}
	return domain.Repositories{
		Users:               userRepository{v},
		UserRatings:         userRatingRepository{v},
		Categories:          categoryRepository{v},
		Products:            productRepository{v},
		Images:              imageRepository{v},
		Favorites:           favoriteRepository{v},
		ProductRatings:      productRatingRepository{v},
		Reports:             reportRepository{v},
		Offers:              offerRepository{v},
		Orders:              orderRepository{v},
		OrderHistory:        orderHistoryRepository{v},
		ShippingMethods:     shippingMethodRepository{v},
		Disputes:            disputeRepository{v},
		DisputeMessages:     disputeMessageRepository{v},
		Conversations:       conversationRepository{v},
		Messages:            messageRepository{view: v, direct: false},
		DirectConversations: directConversationRepository{v},
		DirectMessages:      messageRepository{view: v, direct: true},
		Notifications:       notificationRepository{v},
		Stats:               statsRepository{v},
		Outbox:              outboxRepository{v},
		Idempotency:         idempotencyRepository{v},
	}
}

// view даёт репозиторию доступ к состоянию. Внутри транзакции мьютекс
// уже взят, а изменения пишутся в журнал отмены.
type view struct {
	s  *Store
	tx *txLog
}

func noop() {}

func (v view) rlock() func() {
	if v.tx != nil {
		return noop
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v view) lock() func() {
	if v.tx != nil {
		return noop
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

type txLog struct {
	undo []func()
}

func (l *txLog) rollback() {
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
	l.undo = nil
}

// put записывает значение и запоминает предыдущее для отката.
func put[K comparable, V any](tx *txLog, m map[K]V, k K, v V) {
	if tx != nil {
		prev, ok := m[k]
		tx.undo = append(tx.undo, func() {
			if ok {
				m[k] = prev
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

// remove удаляет ключ и запоминает значение для отката.
func remove[K comparable, V any](tx *txLog, m map[K]V, k K) {
	prev, ok := m[k]
	if !ok {
		return
	}
	if tx != nil {
		tx.undo = append(tx.undo, func() { m[k] = prev })
	}
	delete(m, k)
}

// appendTo добавляет элемент к срезу в карте, не трогая исходный массив.
func appendTo[K comparable, V any](tx *txLog, m map[K][]V, k K, v V) {
	cur := m[k]
	next := make([]V, len(cur), len(cur)+1)
	copy(next, cur)
	put(tx, m, k, append(next, v))
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func sortNewestFirst[T any](items []T, key func(T) (int64, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti != tj {
			return ti > tj
		}
		return idi > idj
	})
}

var _ domain.Store = (*Store)(nil)
