package domain

import (
	"math"
	"strings"
	"time"
)

// UserType определяет роль пользователя на площадке.
type UserType string

const (
	// UserTypeBuyer — только покупки, верификация не требуется.
	UserTypeBuyer UserType = "buyer"
	// UserTypeSeller — только продажи после одобрения администратором.
	UserTypeSeller UserType = "seller"
	// UserTypeBoth — покупки и продажи, обе возможности требуют одобрения.
	UserTypeBoth UserType = "both"
	// UserTypeAdmin — персонал площадки, не покупает и не продаёт.
	UserTypeAdmin UserType = "admin"
)

// Valid сообщает, известна ли роль.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeBuyer, UserTypeSeller, UserTypeBoth, UserTypeAdmin:
		return true
	}
	return false
}

// VerificationStatus описывает состояние проверки продавца.
type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "pending"
	VerificationVerified    VerificationStatus = "verified"
	VerificationRejected    VerificationStatus = "rejected"
	VerificationNotRequired VerificationStatus = "not_required"
)

// User — учётная запись площадки.
type User struct {
	ID                 string             `json:"id"`
	Username           string             `json:"username"`
	Email              string             `json:"email"`
	FirstName          string             `json:"first_name"`
	LastName           string             `json:"last_name"`
	Phone              string             `json:"phone"`
	Location           string             `json:"location"`
	UserType           UserType           `json:"user_type"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	AccountApproved    bool               `json:"account_approved"`
	IsStaff            bool               `json:"is_staff"`
	IsActive           bool               `json:"is_active"`
	IsPremium          bool               `json:"is_premium"`
	AverageRating      float64            `json:"average_rating"`
	TotalRatings       int                `json:"total_ratings"`
	VerificationNotes  string             `json:"verification_notes"`
	VerifiedBy         string             `json:"verified_by"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ApplyRoleDefaults выставляет поля верификации по роли.
// Вызывается явно при создании пользователя и при каждой смене роли.
func ApplyRoleDefaults(u *User) {
	switch u.UserType {
	case UserTypeBuyer:
		u.VerificationStatus = VerificationNotRequired
		u.AccountApproved = true
	case UserTypeSeller, UserTypeBoth:
		if u.VerificationStatus == "" || u.VerificationStatus == VerificationNotRequired {
			u.VerificationStatus = VerificationPending
			u.AccountApproved = false
		}
	case UserTypeAdmin:
		u.VerificationStatus = VerificationNotRequired
		u.AccountApproved = true
		u.IsStaff = true
	}
}

// CanBuy сообщает, может ли пользователь покупать.
func (u User) CanBuy() bool {
	switch u.UserType {
	case UserTypeBuyer:
		return true
	case UserTypeBoth:
		return u.AccountApproved
	default:
		return false
	}
}

// CanSell сообщает, может ли пользователь продавать.
func (u User) CanSell() bool {
	if u.UserType != UserTypeSeller && u.UserType != UserTypeBoth {
		return false
	}
	return u.AccountApproved && u.VerificationStatus == VerificationVerified
}

// IsVerifiedSeller сообщает, прошёл ли пользователь проверку продавца.
func (u User) IsVerifiedSeller() bool {
	return u.VerificationStatus == VerificationVerified && u.AccountApproved
}

// IsAdmin — персонал с правом привилегированных переходов.
func (u User) IsAdmin() bool {
	return u.IsStaff || u.UserType == UserTypeAdmin
}

// RequiresVerification сообщает, проходит ли роль ручную проверку.
func (u User) RequiresVerification() bool {
	return u.UserType == UserTypeSeller || u.UserType == UserTypeBoth
}

// Approve переводит продавца в верифицированные.
func (u *User) Approve(staffID, notes string, at time.Time) error {
	if !u.RequiresVerification() {
		return ErrVerificationNotRequired
	}
	if u.VerificationStatus == VerificationVerified && u.AccountApproved {
		return ErrUserAlreadyVerified
	}
	u.VerificationStatus = VerificationVerified
	u.AccountApproved = true
	u.VerificationNotes = notes
	u.VerifiedBy = staffID
	u.VerifiedAt = &at
	u.UpdatedAt = at
	return nil
}

// Reject отклоняет заявку продавца.
func (u *User) Reject(staffID, reason string, at time.Time) error {
	if !u.RequiresVerification() {
		return ErrVerificationNotRequired
	}
	u.VerificationStatus = VerificationRejected
	u.AccountApproved = false
	u.VerificationNotes = reason
	u.VerifiedBy = staffID
	u.VerifiedAt = nil
	u.UpdatedAt = at
	return nil
}

// ValidateInvariants проверяет обязательные поля пользователя.
func (u *User) ValidateInvariants() []error {
	var errs []error
	if strings.TrimSpace(u.Username) == "" {
		errs = append(errs, ErrUsernameRequired)
	}
	if strings.TrimSpace(u.Email) == "" {
		errs = append(errs, ErrEmailRequired)
	}
	if !u.UserType.Valid() {
		errs = append(errs, ErrUserTypeInvalid)
	}
	return errs
}

// UserRating — оценка контрагента по завершённому заказу.
type UserRating struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	OrderID    string    `json:"order_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidRatingValue проверяет шкалу 1..5.
func ValidRatingValue(v int) bool {
	return v >= 1 && v <= 5
}

// RoundRating округляет средний рейтинг до одного знака.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// AverageRating считает средний рейтинг по полному набору оценок.
func AverageRating(values []int) (float64, int) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return RoundRating(float64(sum) / float64(len(values))), len(values)
}
