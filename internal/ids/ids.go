// Package ids выдаёт идентификаторы сущностей.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New возвращает UUID для изменяемых сущностей.
func New() string {
	return uuid.NewString()
}

// Sortable возвращает ULID. Идентификаторы, выданные одним процессом,
// упорядочены по времени выдачи, поэтому подходят для журналов только на добавление.
func Sortable() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
