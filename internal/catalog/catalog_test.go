package catalog_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-file-share/internal/apperr"
	"secure-file-share/internal/catalog"
	"secure-file-share/internal/identity"
	"secure-file-share/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []catalog.Event
}

func (r *recorder) Emit(e catalog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []catalog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]catalog.Event(nil), r.events...)
}

type fixture struct {
	cat   *catalog.Catalog
	rec   *recorder
	alice identity.User
	bob   identity.User
	carol identity.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	mk := func(name string) identity.User {
		u, err := mem.CreateUser(ctx, name, "x")
		require.NoError(t, err)
		return u
	}
	rec := &recorder{}
	return fixture{
		cat:   catalog.New(mem, mem, rec),
		rec:   rec,
		alice: mk("alice"),
		bob:   mk("bob"),
		carol: mk("carol"),
	}
}

func (fx fixture) upload(t *testing.T, owner identity.User, name string) catalog.FileRecord {
	t.Helper()
	f, err := fx.cat.RegisterFile(context.Background(), owner, name, "ABCDEF", "stored_"+owner.Username+"_"+name)
	require.NoError(t, err)
	return f
}

func TestRegisterFile(t *testing.T) {
	fx := newFixture(t)
	f := fx.upload(t, fx.alice, "report.pdf")

	assert.Equal(t, fx.alice.ID, f.OwnerID)
	assert.Equal(t, "alice", f.OwnerName)
	assert.Equal(t, "abcdef", f.Fingerprint)
	assert.Equal(t, "report.pdf", f.OriginalName)

	events := fx.rec.all()
	require.Len(t, events, 1)
	up, ok := events[0].(catalog.FileUploaded)
	require.True(t, ok)
	assert.Equal(t, "alice", up.Uploader)
	assert.Equal(t, f.ID, up.File.ID)
}

func TestRegisterFile_Rejects(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.cat.RegisterFile(ctx, identity.User{}, "a.txt", "ff", "s")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = fx.cat.RegisterFile(ctx, fx.alice, "a.txt", "  ", "s")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = fx.cat.RegisterFile(ctx, fx.alice, "", "ff", "s")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	assert.Empty(t, fx.rec.all())
}

func TestAuthorize(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, "r.pdf")

	access, err := fx.cat.Authorize(ctx, fx.alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.Owner, access)

	access, err = fx.cat.Authorize(ctx, fx.bob, f.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.Denied, access)

	_, dup, err := fx.cat.Grant(ctx, fx.alice, f.ID, "bob")
	require.NoError(t, err)
	assert.False(t, dup)

	access, err = fx.cat.Authorize(ctx, fx.bob, f.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.Shared, access)

	access, err = fx.cat.Authorize(ctx, fx.carol, f.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.Denied, access)

	_, err = fx.cat.Authorize(ctx, fx.alice, 999)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestAuthorizeStored(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, "r.pdf")

	got, access, err := fx.cat.AuthorizeStored(ctx, fx.alice, f.StoredName)
	require.NoError(t, err)
	assert.Equal(t, catalog.Owner, access)
	assert.Equal(t, f.ID, got.ID)

	_, access, err = fx.cat.AuthorizeStored(ctx, fx.carol, f.StoredName)
	require.NoError(t, err)
	assert.Equal(t, catalog.Denied, access)

	_, _, err = fx.cat.AuthorizeStored(ctx, fx.alice, "missing.pdf")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGrant_OnlyOwnerMayShare(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, "r.pdf")

	for _, receiver := range []string{"carol", "alice", "nobody"} {
		_, _, err := fx.cat.Grant(ctx, fx.bob, f.ID, receiver)
		assert.True(t, apperr.Is(err, apperr.CodeForbidden), "receiver %s: %v", receiver, err)
	}
	shared, err := fx.cat.ListSharedWithMe(ctx, fx.carol)
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestGrant_Rejects(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, "r.pdf")

	_, _, err := fx.cat.Grant(ctx, fx.alice, f.ID, "alice")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, _, err = fx.cat.Grant(ctx, fx.alice, f.ID, "nobody")
	require.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Equal(t, "Receiver user not found", err.Error())

	_, _, err = fx.cat.Grant(ctx, fx.alice, 999, "bob")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	shared, err := fx.cat.ListSharedWithMe(ctx, fx.alice)
	require.NoError(t, err)
	assert.Empty(t, shared)
	assert.Len(t, fx.rec.all(), 1)
}

func TestGrant_Duplicate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, "r.pdf")

	first, dup, err := fx.cat.Grant(ctx, fx.alice, f.ID, "bob")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, "alice", first.SenderName)
	assert.Equal(t, "bob", first.ReceiverName)

	second, dup, err := fx.cat.Grant(ctx, fx.alice, f.ID, "bob")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)

	shared, err := fx.cat.ListSharedWithMe(ctx, fx.bob)
	require.NoError(t, err)
	assert.Len(t, shared, 1)

	events := fx.rec.all()
	require.Len(t, events, 2)
	sh, ok := events[1].(catalog.FileShared)
	require.True(t, ok)
	assert.Equal(t, fx.bob.ID, sh.Grant.ReceiverID)
	assert.Equal(t, f.ID, sh.Grant.File.ID)
}

func TestListOwned(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a1 := fx.upload(t, fx.alice, "one.txt")
	fx.upload(t, fx.bob, "theirs.txt")
	a2 := fx.upload(t, fx.alice, "two.txt")

	owned, err := fx.cat.ListOwned(ctx, fx.alice)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, a1.ID, owned[0].ID)
	assert.Equal(t, a2.ID, owned[1].ID)

	none, err := fx.cat.ListOwned(ctx, fx.carol)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNew_NilEmitter(t *testing.T) {
	mem := store.NewMemory()
	u, err := mem.CreateUser(context.Background(), "alice", "x")
	require.NoError(t, err)

	cat := catalog.New(mem, mem, nil)
	_, err = cat.RegisterFile(context.Background(), u, "a.txt", "ff", "1_a.txt")
	assert.NoError(t, err)
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "owner", catalog.Owner.String())
	assert.Equal(t, "shared", catalog.Shared.String())
	assert.Equal(t, "denied", catalog.Denied.String())
}
