package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/raakeshmj/vpnshield/internal/db"
	"github.com/raakeshmj/vpnshield/internal/repository"
)

type MemoryRepository struct {
	users map[string]*db.User
	mu    sync.RWMutex
}

func New() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*db.User),
	}
}

func (r *MemoryRepository) Get(ctx context.Context, email string) (*db.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[db.NormalizeEmail(email)]; ok {
		return u.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) Put(ctx context.Context, user *db.User) error {
	u := user.Clone()
	u.Email = db.NormalizeEmail(u.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Email] = u
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, user *db.User) error {
	u := user.Clone()
	u.Email = db.NormalizeEmail(u.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Email]; ok {
		return repository.ErrAlreadyExists
	}
	r.users[u.Email] = u
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, email string) error {
	key := db.NormalizeEmail(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, key)
	return nil
}

// List returns every user ordered by email.
func (r *MemoryRepository) List(ctx context.Context) ([]*db.User, error) {
	r.mu.RLock()
	list := make([]*db.User, 0, len(r.users))
	for _, u := range r.users {
		list = append(list, u.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
	return list, nil
}

func (r *MemoryRepository) update(email string, fn func(u *db.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[db.NormalizeEmail(email)]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *MemoryRepository) SetRole(ctx context.Context, email, role string) error {
	return r.update(email, func(u *db.User) { u.Role = role })
}

func (r *MemoryRepository) SetPlan(ctx context.Context, email, plan string) error {
	return r.update(email, func(u *db.User) { u.Plan = plan })
}

func (r *MemoryRepository) AddUsage(ctx context.Context, email string, delta db.Usage) error {
	return r.update(email, func(u *db.User) {
		u.Usage.Connections += delta.Connections
		u.Usage.BytesTransferred += delta.BytesTransferred
	})
}

// Interface check
var _ repository.UserRepository = (*MemoryRepository)(nil)
