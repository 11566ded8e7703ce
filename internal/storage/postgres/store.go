package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// Store оборачивает SQL-подключение к PostgreSQL и реализует единицу работы.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Repos возвращает репозитории, каждый запрос которых выполняется в автокоммите.
func (s *Store) Repos() domain.Repositories {
	return newRepositories(querier{db: s.db, ctx: context.Background()})
}

// WithinTx выполняет fn в одной транзакции. Ошибка или паника fn откатывают её.
func (s *Store) WithinTx(ctx context.Context, fn func(repos domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newRepositories(querier{db: tx, ctx: ctx})); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func newRepositories(q querier) domain.Repositories {
	return domain.Repositories{
		Users:               userRepository{q},
		UserRatings:         userRatingRepository{q},
		Categories:          categoryRepository{q},
		Products:            productRepository{q},
		Images:              imageRepository{q},
		Favorites:           favoriteRepository{q},
		ProductRatings:      productRatingRepository{q},
		Reports:             reportRepository{q},
		Offers:              offerRepository{q},
		Orders:              orderRepository{q},
		OrderHistory:        orderHistoryRepository{q},
		ShippingMethods:     shippingMethodRepository{q},
		Disputes:            disputeRepository{q},
		DisputeMessages:     disputeMessageRepository{q},
		Conversations:       conversationRepository{q},
		Messages:            messageRepository{querier: q, table: "messages", convTable: "conversations", convCols: "c.buyer_id, c.seller_id"},
		DirectConversations: directConversationRepository{q},
		DirectMessages:      messageRepository{querier: q, table: "direct_messages", convTable: "direct_conversations", convCols: "c.participant1_id, c.participant2_id"},
		Notifications:       notificationRepository{q},
		Stats:               statsRepository{q},
		Outbox:              outboxRepository{q},
		Idempotency:         idempotencyRepository{q},
	}
}

var _ domain.Store = (*Store)(nil)
