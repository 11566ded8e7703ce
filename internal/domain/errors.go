package domain

import "errors"

// Базовые категории ошибок. Конкретные ошибки оборачивают одну из них,
// поэтому транспортный слой проверяет только категорию.
var (
	// ErrValidation — входные данные нарушают бизнес-правила.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden — у участника нет прав или связи с сущностью.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState — переход запрошен из недопустимого состояния.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound — сущность отсутствует.
	ErrNotFound = errors.New("not found")
)

// Error — доменная ошибка с категорией. Текст отдаётся клиенту как есть.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Unwrap позволяет errors.Is сопоставить ошибку с категорией.
func (e *Error) Unwrap() error { return e.kind }

func validation(msg string) error   { return &Error{kind: ErrValidation, msg: msg} }
func forbidden(msg string) error    { return &Error{kind: ErrForbidden, msg: msg} }
func invalidState(msg string) error { return &Error{kind: ErrInvalidState, msg: msg} }
func notFound(msg string) error     { return &Error{kind: ErrNotFound, msg: msg} }

// NewValidationError создаёт ошибку валидации с произвольным текстом.
func NewValidationError(msg string) error { return validation(msg) }

// Ошибки пользователей.
var (
	ErrUsernameRequired = validation("username is required")
	ErrEmailRequired    = validation("email is required")
	ErrUserTypeInvalid  = validation("unknown user type")
	ErrUsernameTaken    = validation("username is already taken")
	ErrEmailTaken       = validation("email is already registered")
	ErrUserNotFound     = notFound("user not found")
	ErrStaffOnly        = forbidden("staff privileges required")
	ErrCannotBuy        = forbidden("account is not allowed to buy")
	ErrCannotSell       = forbidden("account is not allowed to sell")
	ErrNotProfileOwner  = forbidden("you can only edit your own profile")
	// ErrVerificationNotRequired — покупателю и администратору верификация не нужна.
	ErrVerificationNotRequired = invalidState("verification is not required for this account")
	ErrUserAlreadyVerified     = invalidState("user is already verified")
	ErrRatingValueInvalid      = validation("rating must be between 1 and 5")
	ErrCannotRateSelf          = validation("you cannot rate yourself")
	ErrUserAlreadyRated        = validation("you have already rated this user for this order")
	ErrRatingOrderNotDelivered = invalidState("order must be delivered before rating")
)

// Ошибки каталога.
var (
	ErrCategoryNameRequired    = validation("category name is required")
	ErrCategoryNotFound        = notFound("category not found")
	ErrCategorySlugTaken       = validation("category slug is already taken")
	ErrProductTitleRequired    = validation("title is required")
	ErrProductPriceInvalid     = validation("price must be non-negative")
	ErrProductConditionInvalid = validation("unknown product condition")
	ErrProductNotFound         = notFound("product not found")
	ErrNotProductOwner         = forbidden("you do not own this product")
	ErrProductAlreadyVerified  = invalidState("product is already verified")
	ErrProductStatusChange     = invalidState("product status change is not allowed")
	ErrProductUnavailable      = invalidState("product is not available")
	ErrImageURLRequired        = validation("image url is required")
	ErrImageNotFound           = notFound("image not found")
	ErrAlreadyFavorite         = validation("Product is already in your favorites")
	ErrFavoriteNotFound        = notFound("product is not in your favorites")
	ErrCannotRateOwnProduct    = validation("you cannot rate your own product")
	ErrProductRatingNotFound   = notFound("rating not found")
	ErrReportReasonInvalid     = validation("unknown report reason")
	ErrReportDuplicate         = validation("you have already reported this product")
	ErrReportNotFound          = notFound("report not found")
	ErrReportClosed            = invalidState("report is already closed")
)

// Ошибки переговоров. Тексты совпадают с тем, что видит клиент.
var (
	ErrOfferProductUnavailable = validation("Product is not available for offers")
	ErrOfferOwnProduct         = validation("You cannot make an offer on your own product")
	ErrOfferAmountInvalid      = validation("Offer amount must be greater than 0")
	ErrOfferDuplicatePending   = validation("You already have a pending offer for this product")
	ErrOfferNotPending         = invalidState("Offer is not pending")
	ErrOfferNotFound           = notFound("offer not found")
	ErrNotOfferSeller          = forbidden("only the seller can respond to this offer")
	ErrNotOfferParty           = forbidden("you are not a party to this offer")
)

// Ошибки заказов.
var (
	ErrOrderOwnProduct         = validation("You cannot purchase your own product")
	ErrOrderProductNotForSale  = validation("Product is not available for purchase")
	ErrOrderOfferInvalid       = validation("This offer has expired or is no longer valid for purchase")
	ErrShippingMethodInvalid   = validation("Invalid shipping method")
	ErrShippingNameRequired    = validation("shipping method name is required")
	ErrShippingMethodNotFound  = notFound("shipping method not found")
	ErrAmountMismatch          = validation("total amount does not match unit price plus shipping")
	ErrOrderNotFound           = notFound("order not found")
	ErrNotOrderParty           = forbidden("you are not a party to this order")
	ErrNotOrderSeller          = forbidden("only the seller can perform this action")
	ErrNotOrderBuyer           = forbidden("only the buyer can perform this action")
	ErrOrderTransition         = invalidState("order status transition is not allowed")
	ErrOrderCannotCancel       = invalidState("Order cannot be cancelled at this stage")
	ErrIdempotencyKeyRequired  = validation("idempotency key is required")
	ErrIdempotencyHashRequired = validation("idempotency request hash is required")
	ErrIdempotencyKeyReused    = validation("idempotency key was used with a different request")
	ErrIdempotencyInProgress   = invalidState("request with this idempotency key is still processing")
	ErrOrderPartiesRequired    = validation("order buyer, seller and product are required")
	ErrOrderNumberInvalid      = validation("order number must be 8 uppercase alphanumeric characters")
)

// Ошибки споров.
var (
	ErrDisputeTypeInvalid      = validation("unknown dispute type")
	ErrDisputeDescription      = validation("dispute description is required")
	ErrDisputeOrderState       = invalidState("order is not eligible for a dispute")
	ErrDisputeAlreadyOpen      = invalidState("order already has an active dispute")
	ErrDisputeNotFound         = notFound("dispute not found")
	ErrNotDisputeParty         = forbidden("you are not a party to this dispute")
	ErrDisputeTransition       = invalidState("dispute status transition is not allowed")
	ErrDisputeResolutionEmpty  = validation("resolution is required")
	ErrDisputeResolverRequired = validation("resolved_by is required")
	ErrMessageEmpty            = validation("message content is required")
)

// Ошибки переписки и уведомлений.
var (
	ErrConversationOwnProduct = validation("You cannot start a conversation about your own product")
	ErrConversationNotFound   = notFound("conversation not found")
	ErrConversationExists     = validation("conversation already exists")
	ErrNotConversationParty   = forbidden("You are not part of this conversation")
	ErrDirectSelf             = validation("participants must be different users")
	ErrNotificationNotFound   = notFound("Notification not found")
	// ErrNotificationExists возвращается при повторной материализации того же уведомления.
	ErrNotificationExists = errors.New("notification already exists")
)

// Ошибки хранилища.
var (
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrOrderNumberTaken — сгенерированный номер заказа уже занят.
	ErrOrderNumberTaken = errors.New("order number already taken")
	// ErrIdempotencyKeyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — ключ отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// ErrorKind — категория ошибки для транспортного слоя.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindForbidden  ErrorKind = "forbidden"
	KindState      ErrorKind = "state"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

// KindOf определяет категорию ошибки.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidState):
		return KindState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
