// Package store implements the identity and catalog stores, backed either by
// PostgreSQL or by process memory.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/catalog"
	"secure-file-share/internal/identity"
)

type grantKey struct {
	fileID, senderID, receiverID int64
}

type memUser struct {
	user identity.User
	hash string
}

type memShare struct {
	id         int64
	fileID     int64
	senderID   int64
	receiverID int64
	createdAt  time.Time
}

// Memory keeps everything in maps guarded by one lock, so each method is
// trivially atomic. It backs tests and single-process development runs.
type Memory struct {
	mu sync.RWMutex

	users      []memUser // id = index+1
	userByName map[string]int64

	files        []catalog.FileRecord // id = index+1
	fileByStored map[string]int64

	shares     []memShare // id = index+1
	shareByKey map[grantKey]int64

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		userByName:   make(map[string]int64),
		fileByStored: make(map[string]int64),
		shareByKey:   make(map[grantKey]int64),
		now:          time.Now,
	}
}

// stamp truncates to whole seconds, matching the unix timestamps Postgres keeps.
func (m *Memory) stamp() time.Time {
	return time.Unix(m.now().Unix(), 0)
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash string) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userByName[username]; ok {
		return identity.User{}, apperr.Conflict("Username already exists")
	}
	u := identity.User{ID: int64(len(m.users) + 1), Username: username, CreatedAt: m.stamp()}
	m.users = append(m.users, memUser{user: u, hash: passwordHash})
	m.userByName[username] = u.ID
	return u, nil
}

func (m *Memory) userLocked(id int64) (memUser, bool) {
	if id <= 0 || id > int64(len(m.users)) {
		return memUser{}, false
	}
	return m.users[id-1], true
}

func (m *Memory) Credentials(_ context.Context, username string) (identity.User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.userByName[username]
	if !ok {
		return identity.User{}, "", apperr.NotFound("User not found")
	}
	u, _ := m.userLocked(id)
	return u.user, u.hash, nil
}

func (m *Memory) UserByID(_ context.Context, id int64) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.userLocked(id)
	if !ok {
		return identity.User{}, apperr.NotFound("User not found")
	}
	return u.user, nil
}

func (m *Memory) UserByName(_ context.Context, username string) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.userByName[username]
	if !ok {
		return identity.User{}, apperr.NotFound("User not found")
	}
	u, _ := m.userLocked(id)
	return u.user, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]identity.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.user)
	}
	return out, nil
}

func (m *Memory) InsertFile(_ context.Context, nf catalog.NewFile) (catalog.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.userLocked(nf.OwnerID)
	if !ok {
		return catalog.FileRecord{}, apperr.NotFound("User not found")
	}
	if _, ok := m.fileByStored[nf.StoredName]; ok {
		return catalog.FileRecord{}, apperr.Conflict("stored name already registered")
	}
	f := catalog.FileRecord{
		ID:           int64(len(m.files) + 1),
		StoredName:   nf.StoredName,
		OriginalName: nf.OriginalName,
		Fingerprint:  nf.Fingerprint,
		OwnerID:      nf.OwnerID,
		OwnerName:    owner.user.Username,
		CreatedAt:    m.stamp(),
	}
	m.files = append(m.files, f)
	m.fileByStored[f.StoredName] = f.ID
	return f, nil
}

func (m *Memory) fileLocked(id int64) (catalog.FileRecord, bool) {
	if id <= 0 || id > int64(len(m.files)) {
		return catalog.FileRecord{}, false
	}
	return m.files[id-1], true
}

func (m *Memory) FileByID(_ context.Context, id int64) (catalog.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fileLocked(id)
	if !ok {
		return catalog.FileRecord{}, apperr.NotFound("File not found")
	}
	return f, nil
}

func (m *Memory) FileByStoredName(_ context.Context, storedName string) (catalog.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.fileByStored[storedName]
	if !ok {
		return catalog.FileRecord{}, apperr.NotFound("File not found in database")
	}
	f, _ := m.fileLocked(id)
	return f, nil
}

func (m *Memory) grantLocked(s memShare) catalog.ShareGrant {
	f, _ := m.fileLocked(s.fileID)
	sender, _ := m.userLocked(s.senderID)
	receiver, _ := m.userLocked(s.receiverID)
	return catalog.ShareGrant{
		ID:           s.id,
		File:         f,
		SenderID:     s.senderID,
		SenderName:   sender.user.Username,
		ReceiverID:   s.receiverID,
		ReceiverName: receiver.user.Username,
		CreatedAt:    s.createdAt,
	}
}

func (m *Memory) CreateGrant(_ context.Context, fileID, senderID, receiverID int64) (catalog.ShareGrant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.fileLocked(fileID)
	if !ok {
		return catalog.ShareGrant{}, false, apperr.NotFound("File not found")
	}
	if f.OwnerID != senderID {
		return catalog.ShareGrant{}, false, apperr.Forbidden("You can only share files you have uploaded")
	}
	if _, ok := m.userLocked(receiverID); !ok {
		return catalog.ShareGrant{}, false, apperr.NotFound("Receiver user not found")
	}
	if senderID == receiverID {
		return catalog.ShareGrant{}, false, apperr.InvalidArgument("Cannot share a file with yourself")
	}

	key := grantKey{fileID, senderID, receiverID}
	if id, ok := m.shareByKey[key]; ok {
		return m.grantLocked(m.shares[id-1]), false, nil
	}
	s := memShare{
		id:         int64(len(m.shares) + 1),
		fileID:     fileID,
		senderID:   senderID,
		receiverID: receiverID,
		createdAt:  m.stamp(),
	}
	m.shares = append(m.shares, s)
	m.shareByKey[key] = s.id
	return m.grantLocked(s), true, nil
}

func (m *Memory) HasGrant(_ context.Context, fileID, receiverID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.shares {
		if s.fileID == fileID && s.receiverID == receiverID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FilesByOwner(_ context.Context, ownerID int64) ([]catalog.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []catalog.FileRecord{}
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GrantsByReceiver(_ context.Context, receiverID int64) ([]catalog.ShareGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []catalog.ShareGrant{}
	for _, s := range m.shares {
		if s.receiverID == receiverID {
			out = append(out, m.grantLocked(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Check satisfies the server's health check.
func (m *Memory) Check(context.Context) error { return nil }
