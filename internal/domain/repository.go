package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	// Create сохраняет пользователя. Возвращает ErrUsernameTaken или ErrEmailTaken при дубликате.
	Create(user User) error
	// Get возвращает пользователя по идентификатору или ErrUserNotFound.
	Get(id string) (User, error)
	Save(user User) error
	// ListPendingVerification возвращает продавцов, ожидающих проверки, от старых к новым.
	ListPendingVerification(limit int) ([]User, error)
	// ListRecent возвращает последних зарегистрированных пользователей.
	ListRecent(limit int) ([]User, error)
	// SetRating записывает пересчитанный средний рейтинг.
	SetRating(id string, average float64, total int) error
}

// UserRatingRepository хранит оценки пользователей.
type UserRatingRepository interface {
	// Create возвращает ErrUserAlreadyRated для повторной тройки (from, to, order).
	Create(rating UserRating) error
	ListForUser(userID string) ([]UserRating, error)
}

// CategoryRepository хранит рубрики.
type CategoryRepository interface {
	Create(category Category) error
	Get(id string) (Category, error)
	ListActive() ([]Category, error)
}

// ProductRepository хранит объявления.
type ProductRepository interface {
	Create(product Product) error
	Get(id string) (Product, error)
	// Save сохраняет объявление с проверкой версии и увеличивает её.
	Save(product Product) error
	List(filter ProductFilter) ([]Product, error)
	// IncrementViews атомарно увеличивает счётчик просмотров на 1.
	IncrementViews(id string) (int64, error)
	// AdjustFavorites атомарно меняет счётчик избранного, не опуская его ниже нуля.
	AdjustFavorites(id string, delta int64) error
	// SetRating записывает пересчитанный средний рейтинг.
	SetRating(id string, average float64, total int) error
}

// ProductImageRepository хранит изображения объявлений.
type ProductImageRepository interface {
	Add(image ProductImage) error
	Get(id string) (ProductImage, error)
	ListByProduct(productID string) ([]ProductImage, error)
	Delete(id string) error
	// SetMain делает изображение главным и снимает флаг с остальных.
	SetMain(productID, imageID string) error
}

// FavoriteRepository хранит избранное.
type FavoriteRepository interface {
	// Add возвращает ErrAlreadyFavorite, если пара уже есть.
	Add(fav Favorite) error
	// Remove возвращает ErrFavoriteNotFound, если пары нет.
	Remove(userID, productID string) error
	Exists(userID, productID string) (bool, error)
	ListByUser(userID string) ([]Favorite, error)
}

// ProductRatingRepository хранит оценки товаров.
type ProductRatingRepository interface {
	// Upsert создаёт или обновляет оценку пары (user, product).
	Upsert(rating ProductRating) (ProductRating, error)
	Delete(userID, productID string) error
	ListByProduct(productID string) ([]ProductRating, error)
}

// ReportRepository хранит жалобы на объявления.
type ReportRepository interface {
	Create(report Report) error
	Get(id string) (Report, error)
	Save(report Report) error
	HasOpen(reporterID, productID string) (bool, error)
	List(status ReportStatus, limit int) ([]Report, error)
}

// OfferRepository хранит предложения цены.
type OfferRepository interface {
	// Create возвращает ErrOfferDuplicatePending при втором ожидающем предложении пары.
	Create(offer Offer) error
	Get(id string) (Offer, error)
	Save(offer Offer) error
	HasPending(productID, buyerID string) (bool, error)
	ListByProduct(productID string) ([]Offer, error)
	ListByBuyer(buyerID string) ([]Offer, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderNumberTaken, если номер занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	GetByNumber(orderNumber string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	List(filter OrderFilter) ([]Order, error)
}

// OrderStatusRepository хранит историю статусов. Только добавление.
type OrderStatusRepository interface {
	Append(entry OrderStatusEntry) error
	List(orderID string) ([]OrderStatusEntry, error)
}

// ShippingMethodRepository хранит способы доставки.
type ShippingMethodRepository interface {
	Create(method ShippingMethod) error
	Get(id string) (ShippingMethod, error)
	ListActive() ([]ShippingMethod, error)
}

// DisputeRepository хранит споры.
type DisputeRepository interface {
	Create(dispute Dispute) error
	Get(id string) (Dispute, error)
	Save(dispute Dispute) error
	HasActive(orderID string) (bool, error)
	// ListForUser возвращает споры, где пользователь заявитель или сторона заказа.
	// Пустой userID возвращает все споры.
	ListForUser(userID string, status DisputeStatus, limit int) ([]Dispute, error)
}

// DisputeMessageRepository хранит переписку по спорам. Только добавление.
type DisputeMessageRepository interface {
	Append(msg DisputeMessage) error
	List(disputeID string) ([]DisputeMessage, error)
}

// ConversationRepository хранит переписки по товарам.
type ConversationRepository interface {
	Create(conv Conversation) error
	Get(id string) (Conversation, error)
	Find(productID, buyerID, sellerID string) (Conversation, error)
	Save(conv Conversation) error
	ListByUser(userID string) ([]Conversation, error)
}

// MessageRepository хранит сообщения переписок по товарам.
type MessageRepository interface {
	Create(msg Message) error
	List(conversationID string) ([]Message, error)
	// MarkRead отмечает прочитанными сообщения собеседника.
	MarkRead(conversationID, readerID string) (int, error)
	// CountUnread считает непрочитанные сообщения пользователю во всех активных переписках.
	CountUnread(userID string) (int, error)
}

// DirectConversationRepository хранит личные переписки.
type DirectConversationRepository interface {
	Create(conv DirectConversation) error
	Get(id string) (DirectConversation, error)
	// Find ищет переписку по упорядоченной паре участников.
	Find(participant1ID, participant2ID string) (DirectConversation, error)
	Touch(id string, at time.Time) error
	ListByUser(userID string) ([]DirectConversation, error)
}

// DirectMessageRepository хранит личные сообщения.
type DirectMessageRepository interface {
	Create(msg Message) error
	List(conversationID string) ([]Message, error)
	MarkRead(conversationID, readerID string) (int, error)
	CountUnread(userID string) (int, error)
}

// NotificationRepository хранит уведомления.
type NotificationRepository interface {
	// Create возвращает ErrNotificationExists при повторном ID.
	Create(n Notification) error
	List(recipientID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(recipientID, id string) error
	MarkAllRead(recipientID string) (int, error)
	// MarkConversationRead отмечает уведомления о сообщениях в переписке.
	MarkConversationRead(recipientID, conversationID string) (int, error)
	Delete(recipientID, id string) error
	CountUnread(recipientID string) (int, error)
}

// StatsRepository агрегирует показатели для панели администратора.
type StatsRepository interface {
	Totals() (PlatformTotals, error)
	PeriodCounts(from, to time.Time) (PeriodCounts, error)
	// RevenueFor возвращает сумму заказов продавца или покупателя в указанных статусах.
	RevenueFor(filter OrderFilter, statuses ...OrderStatus) (decimal.Decimal, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key, resourceID string) error
	MarkFailed(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// Repositories группирует репозитории одного хранилища. Внутри WithinTx
// все они работают в одной транзакции.
type Repositories struct {
	Users               UserRepository
	UserRatings         UserRatingRepository
	Categories          CategoryRepository
	Products            ProductRepository
	Images              ProductImageRepository
	Favorites           FavoriteRepository
	ProductRatings      ProductRatingRepository
	Reports             ReportRepository
	Offers              OfferRepository
	Orders              OrderRepository
	OrderHistory        OrderStatusRepository
	ShippingMethods     ShippingMethodRepository
	Disputes            DisputeRepository
	DisputeMessages     DisputeMessageRepository
	Conversations       ConversationRepository
	Messages            MessageRepository
	DirectConversations DirectConversationRepository
	DirectMessages      DirectMessageRepository
	Notifications       NotificationRepository
	Stats               StatsRepository
	Outbox              OutboxRepository
	Idempotency         IdempotencyRepository
}

// Store — хранилище с единицей работы.
type Store interface {
	// Repos возвращает репозитории вне транзакции.
	Repos() Repositories
	// WithinTx выполняет fn атомарно. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	Close() error
}
