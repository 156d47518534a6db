// Package catalog is the authoritative record of uploaded files and share
// grants. It is the only component that decides whether a user may read a
// file, and it emits an event after every committed mutation.
package catalog

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/identity"
)

// FileRecord is one uploaded artifact. It is never updated after creation.
type FileRecord struct {
	ID           int64
	StoredName   string
	OriginalName string
	Fingerprint  string
	OwnerID      int64
	OwnerName    string
	CreatedAt    time.Time
}

// ShareGrant gives Receiver read access to File. Sender is always the
// file's owner at the time the grant was created.
type ShareGrant struct {
	ID           int64
	File         FileRecord
	SenderID     int64
	SenderName   string
	ReceiverID   int64
	ReceiverName string
	CreatedAt    time.Time
}

// Access is the outcome of an authorization check.
type Access int

const (
	Denied Access = iota
	Owner
	Shared
)

func (a Access) String() string {
	switch a {
	case Owner:
		return "owner"
	case Shared:
		return "shared"
	default:
		return "denied"
	}
}

// NewFile carries what InsertFile needs; the store assigns id and timestamp.
type NewFile struct {
	StoredName   string
	OriginalName string
	Fingerprint  string
	OwnerID      int64
}

// Store persists files and grants. Every method is a single transaction.
//
// CreateGrant must re-check, inside its transaction, that senderID still
// owns the file (apperr Forbidden otherwise) and must treat an existing
// (file, sender, receiver) row as a duplicate: it returns that row with
// created == false instead of inserting another.
type Store interface {
	InsertFile(ctx context.Context, f NewFile) (FileRecord, error)
	FileByID(ctx context.Context, id int64) (FileRecord, error)
	FileByStoredName(ctx context.Context, storedName string) (FileRecord, error)
	CreateGrant(ctx context.Context, fileID, senderID, receiverID int64) (grant ShareGrant, created bool, err error)
	HasGrant(ctx context.Context, fileID, receiverID int64) (bool, error)
	FilesByOwner(ctx context.Context, ownerID int64) ([]FileRecord, error)
	GrantsByReceiver(ctx context.Context, receiverID int64) ([]ShareGrant, error)
}

// Users resolves share receivers by name.
type Users interface {
	UserByName(ctx context.Context, username string) (identity.User, error)
}

type Catalog struct {
	store   Store
	users   Users
	emitter Emitter
}

// New returns a Catalog. emitter may be nil, in which case events are dropped.
func New(store Store, users Users, emitter Emitter) *Catalog {
	if emitter == nil {
		emitter = discard{}
	}
	return &Catalog{store: store, users: users, emitter: emitter}
}

// RegisterFile records a file the actor has just stored. fingerprint must be
// computed by the server over the stored bytes.
func (c *Catalog) RegisterFile(ctx context.Context, actor identity.User, originalName, fingerprint, storedName string) (FileRecord, error) {
	if actor.ID == 0 {
		return FileRecord{}, apperr.Unauthorized("Unauthorized")
	}
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if fingerprint == "" {
		return FileRecord{}, apperr.InvalidArgument("file fingerprint is required")
	}
	if storedName == "" || originalName == "" {
		return FileRecord{}, apperr.InvalidArgument("file name is required")
	}

	f, err := c.store.InsertFile(ctx, NewFile{
		StoredName:   storedName,
		OriginalName: originalName,
		Fingerprint:  fingerprint,
		OwnerID:      actor.ID,
	})
	if err != nil {
		return FileRecord{}, err
	}
	f.OwnerName = actor.Username

	log.WithFields(log.Fields{
		"file_id":     f.ID,
		"stored_name": f.StoredName,
		"owner_id":    actor.ID,
	}).Info("file registered")

	c.emitter.Emit(FileUploaded{File: f, Uploader: actor.Username})
	return f, nil
}

// Grant shares fileID with receiverName. The returned bool is true when the
// same grant already existed; no new row or event is produced in that case.
func (c *Catalog) Grant(ctx context.Context, actor identity.User, fileID int64, receiverName string) (ShareGrant, bool, error) {
	f, err := c.store.FileByID(ctx, fileID)
	if err != nil {
		return ShareGrant{}, false, err
	}
	if f.OwnerID != actor.ID {
		return ShareGrant{}, false, apperr.Forbidden("You can only share files you have uploaded")
	}

	receiver, err := c.users.UserByName(ctx, strings.TrimSpace(receiverName))
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return ShareGrant{}, false, apperr.NotFound("Receiver user not found").WithCause(err)
		}
		return ShareGrant{}, false, err
	}
	if receiver.ID == actor.ID {
		return ShareGrant{}, false, apperr.InvalidArgument("Cannot share a file with yourself")
	}

	g, created, err := c.store.CreateGrant(ctx, f.ID, actor.ID, receiver.ID)
	if err != nil {
		return ShareGrant{}, false, err
	}
	if !created {
		log.WithFields(log.Fields{
			"file_id":     f.ID,
			"sender_id":   actor.ID,
			"receiver_id": receiver.ID,
		}).Warn("file already shared with this user")
		return g, true, nil
	}

	log.WithFields(log.Fields{
		"grant_id":    g.ID,
		"file_id":     f.ID,
		"sender_id":   actor.ID,
		"receiver_id": receiver.ID,
	}).Info("file shared")

	c.emitter.Emit(FileShared{Grant: g})
	return g, false, nil
}

// Authorize decides whether actor may read fileID.
func (c *Catalog) Authorize(ctx context.Context, actor identity.User, fileID int64) (Access, error) {
	f, err := c.store.FileByID(ctx, fileID)
	if err != nil {
		return Denied, err
	}
	return c.authorizeFile(ctx, actor, f)
}

// AuthorizeStored resolves a stored name and authorizes actor against it.
func (c *Catalog) AuthorizeStored(ctx context.Context, actor identity.User, storedName string) (FileRecord, Access, error) {
	f, err := c.store.FileByStoredName(ctx, storedName)
	if err != nil {
		return FileRecord{}, Denied, err
	}
	access, err := c.authorizeFile(ctx, actor, f)
	return f, access, err
}

func (c *Catalog) authorizeFile(ctx context.Context, actor identity.User, f FileRecord) (Access, error) {
	if actor.ID != 0 && f.OwnerID == actor.ID {
		return Owner, nil
	}
	ok, err := c.store.HasGrant(ctx, f.ID, actor.ID)
	if err != nil {
		return Denied, err
	}
	if ok {
		return Shared, nil
	}
	return Denied, nil
}

// ListOwned returns the actor's uploads, oldest first.
func (c *Catalog) ListOwned(ctx context.Context, actor identity.User) ([]FileRecord, error) {
	return c.store.FilesByOwner(ctx, actor.ID)
}

// ListSharedWithMe returns grants received by the actor, oldest first.
func (c *Catalog) ListSharedWithMe(ctx context.Context, actor identity.User) ([]ShareGrant, error) {
	return c.store.GrantsByReceiver(ctx, actor.ID)
}
