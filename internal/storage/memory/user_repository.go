package memory

import (
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type userRepository struct{ view }

// Create сохраняет пользователя, проверяя уникальность username и email без учёта регистра.
func (r userRepository) Create(user domain.User) error {
	defer r.lock()()
	st := r.s.st

	uname := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)
	if _, taken := st.usernames[uname]; taken {
		return domain.ErrUsernameTaken
	}
	if _, taken := st.emails[email]; taken {
		return domain.ErrEmailTaken
	}

	put(r.tx, st.users, user.ID, user)
	put(r.tx, st.usernames, uname, user.ID)
	put(r.tx, st.emails, email, user.ID)
	return nil
}

// Get возвращает пользователя или ErrUserNotFound.
func (r userRepository) Get(id string) (domain.User, error) {
	defer r.rlock()()

	user, ok := r.s.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// Save перезаписывает пользователя. Смена email проверяется на уникальность.
func (r userRepository) Save(user domain.User) error {
	defer r.lock()()
	st := r.s.st

	current, ok := st.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	oldEmail := strings.ToLower(current.Email)
	newEmail := strings.ToLower(user.Email)
	if oldEmail != newEmail {
		if _, taken := st.emails[newEmail]; taken {
			return domain.ErrEmailTaken
		}
		remove(r.tx, st.emails, oldEmail)
		put(r.tx, st.emails, newEmail, user.ID)
	}
	put(r.tx, st.users, user.ID, user)
	return nil
}

func (r userRepository) ListPendingVerification(limit int) ([]domain.User, error) {
	defer r.rlock()()

	result := make([]domain.User, 0)
	for _, u := range r.s.st.users {
		if u.RequiresVerification() && u.VerificationStatus == domain.VerificationPending {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return limitSlice(result, limit), nil
}

func (r userRepository) ListRecent(limit int) ([]domain.User, error) {
	defer r.rlock()()

	result := make([]domain.User, 0, len(r.s.st.users))
	for _, u := range r.s.st.users {
		result = append(result, u)
	}
	sortNewestFirst(result, func(u domain.User) (int64, string) { return u.CreatedAt.UnixNano(), u.ID })
	return limitSlice(result, limit), nil
}

func (r userRepository) SetRating(id string, average float64, total int) error {
	defer r.lock()()

	user, ok := r.s.st.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.AverageRating = average
	user.TotalRatings = total
	put(r.tx, r.s.st.users, id, user)
	return nil
}

type userRatingRepository struct{ view }

func userRatingKey(r domain.UserRating) string {
	return r.FromUserID + "|" + r.ToUserID + "|" + r.OrderID
}

// Create сохраняет оценку, тройка (from, to, order) уникальна.
func (r userRatingRepository) Create(rating domain.UserRating) error {
	defer r.lock()()
	st := r.s.st

	key := userRatingKey(rating)
	if _, exists := st.userRatingKeys[key]; exists {
		return domain.ErrUserAlreadyRated
	}
	put(r.tx, st.userRatings, rating.ID, rating)
	put(r.tx, st.userRatingKeys, key, rating.ID)
	return nil
}

func (r userRatingRepository) ListForUser(userID string) ([]domain.UserRating, error) {
	defer r.rlock()()

	result := make([]domain.UserRating, 0)
	for _, rating := range r.s.st.userRatings {
		if rating.ToUserID == userID {
			result = append(result, rating)
		}
	}
	sortNewestFirst(result, func(x domain.UserRating) (int64, string) { return x.CreatedAt.UnixNano(), x.ID })
	return result, nil
}

var (
	_ domain.UserRepository       = userRepository{}
	_ domain.UserRatingRepository = userRatingRepository{}
)
