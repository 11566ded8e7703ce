package postgres

import (
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const userColumns = `
	id, username, email, first_name, last_name, phone, location, user_type,
	verification_status, account_approved, is_staff, is_active, is_premium,
	average_rating, total_ratings, verification_notes, verified_by, verified_at,
	created_at, updated_at`

type userRepository struct{ querier }

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u          domain.User
		userType   string
		status     string
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Location, &userType,
		&status, &u.AccountApproved, &u.IsStaff, &u.IsActive, &u.IsPremium,
		&u.AverageRating, &u.TotalRatings, &u.VerificationNotes, &verifiedBy, &verifiedAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.UserType = domain.UserType(userType)
	u.VerificationStatus = domain.VerificationStatus(status)
	u.VerifiedBy = verifiedBy.String
	u.VerifiedAt = timePtr(verifiedAt)
	return u, nil
}

func userUniqueError(err error) error {
	switch name, _ := uniqueConstraint(err); name {
	case "users_username_key":
		return domain.ErrUsernameTaken
	case "users_email_key":
		return domain.ErrEmailTaken
	}
	return nil
}

func (r userRepository) Create(user domain.User) error {
	_, err := r.exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.Phone, user.Location, string(user.UserType),
		string(user.VerificationStatus), user.AccountApproved, user.IsStaff, user.IsActive, user.IsPremium,
		user.AverageRating, user.TotalRatings, user.VerificationNotes, nullString(user.VerifiedBy), nullTime(user.VerifiedAt),
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if mapped := userUniqueError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r userRepository) Get(id string) (domain.User, error) {
	return getOne(r.querier, scanUser, domain.ErrUserNotFound, "select user",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r userRepository) Save(user domain.User) error {
	affected, err := r.exec(`
		UPDATE users SET
			username = $2, email = $3, first_name = $4, last_name = $5, phone = $6, location = $7,
			user_type = $8, verification_status = $9, account_approved = $10, is_staff = $11,
			is_active = $12, is_premium = $13, verification_notes = $14, verified_by = $15,
			verified_at = $16, updated_at = $17
		WHERE id = $1
	`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.Phone, user.Location,
		string(user.UserType), string(user.VerificationStatus), user.AccountApproved, user.IsStaff,
		user.IsActive, user.IsPremium, user.VerificationNotes, nullString(user.VerifiedBy),
		nullTime(user.VerifiedAt), user.UpdatedAt,
	)
	if err != nil {
		if mapped := userUniqueError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r userRepository) ListPendingVerification(limit int) ([]domain.User, error) {
	users, err := queryList(r.querier, scanUser, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_type IN ('seller', 'both') AND verification_status = 'pending'
		ORDER BY created_at, id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending verifications: %w", err)
	}
	return users, nil
}

func (r userRepository) ListRecent(limit int) ([]domain.User, error) {
	users, err := queryList(r.querier, scanUser, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent users: %w", err)
	}
	return users, nil
}

func (r userRepository) SetRating(id string, average float64, total int) error {
	affected, err := r.exec(`UPDATE users SET average_rating = $2, total_ratings = $3 WHERE id = $1`, id, average, total)
	if err != nil {
		return fmt.Errorf("update user rating: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

type userRatingRepository struct{ querier }

func scanUserRating(row rowScanner) (domain.UserRating, error) {
	var x domain.UserRating
	err := row.Scan(&x.ID, &x.FromUserID, &x.ToUserID, &x.OrderID, &x.Rating, &x.Comment, &x.CreatedAt)
	return x, err
}

func (r userRatingRepository) Create(rating domain.UserRating) error {
	affected, err := r.exec(`
		INSERT INTO user_ratings (id, from_user_id, to_user_id, order_id, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (from_user_id, to_user_id, order_id) DO NOTHING
	`, rating.ID, rating.FromUserID, rating.ToUserID, rating.OrderID, rating.Rating, rating.Comment, rating.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user rating: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserAlreadyRated
	}
	return nil
}

func (r userRatingRepository) ListForUser(userID string) ([]domain.UserRating, error) {
	ratings, err := queryList(r.querier, scanUserRating, `
		SELECT id, from_user_id, to_user_id, order_id, rating, comment, created_at
		FROM user_ratings
		WHERE to_user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user ratings: %w", err)
	}
	return ratings, nil
}

var (
	_ domain.UserRepository       = userRepository{}
	_ domain.UserRatingRepository = userRatingRepository{}
)
