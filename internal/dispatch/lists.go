package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/idilsaglam/tada/internal/model"
)

// DefaultInviteTTL is how long invite links stay valid.
const DefaultInviteTTL = 7 * 24 * time.Hour

var errNoIdentity = errors.New("not authenticated")

func (d *Dispatcher) currentUser(ctx context.Context) (string, error) {
	if d.identity == nil {
		return "", errNoIdentity
	}
	uid, err := d.identity.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", errNoIdentity
	}
	return uid, nil
}

// Lists returns the current user's lists, oldest first.
func (d *Dispatcher) Lists(ctx context.Context) ([]model.List, error) {
	start := time.Now()
	uid, err := d.currentUser(ctx)
	if err != nil {
		return nil, d.observe("lists", start, err)
	}
	lists, err := d.store.ListLists(ctx, uid)
	return lists, d.observe("lists", start, err)
}

// CreateList creates a list owned by the current user.
func (d *Dispatcher) CreateList(ctx context.Context, name string) (model.List, error) {
	start := time.Now()
	uid, err := d.currentUser(ctx)
	if err != nil {
		return model.List{}, d.observe("create_list", start, err)
	}
	l, err := d.store.CreateList(ctx, name, uid)
	return l, d.observe("create_list", start, err)
}

// RenameList changes a list's name.
func (d *Dispatcher) RenameList(ctx context.Context, id, name string) (model.List, error) {
	start := time.Now()
	l, err := d.store.RenameList(ctx, id, name)
	return l, d.observe("rename_list", start, err)
}

// DeleteList removes a list with everything in it.
func (d *Dispatcher) DeleteList(ctx context.Context, id string) error {
	start := time.Now()
	return d.observe("delete_list", start, d.store.DeleteList(ctx, id))
}

// Members lists the owner first, then collaborators.
func (d *Dispatcher) Members(ctx context.Context, listID string) ([]model.Profile, error) {
	start := time.Now()
	m, err := d.store.Members(ctx, listID)
	return m, d.observe("members", start, err)
}

// Shares lists the collaborators of listID.
func (d *Dispatcher) Shares(ctx context.Context, listID string) ([]model.Share, error) {
	start := time.Now()
	s, err := d.store.ListShares(ctx, listID)
	return s, d.observe("shares", start, err)
}

// Share grants the user registered under email access to listID.
func (d *Dispatcher) Share(ctx context.Context, listID, email string) (model.Share, error) {
	start := time.Now()
	s, err := d.store.ShareByEmail(ctx, listID, email)
	return s, d.observe("share", start, err)
}

// Unshare revokes a share.
func (d *Dispatcher) Unshare(ctx context.Context, shareID string) error {
	start := time.Now()
	return d.observe("unshare", start, d.store.DeleteShare(ctx, shareID))
}

// Invite issues an invite link for listID authored by the current user.
func (d *Dispatcher) Invite(ctx context.Context, listID string, ttl time.Duration) (model.InviteLink, error) {
	start := time.Now()
	uid, err := d.currentUser(ctx)
	if err != nil {
		return model.InviteLink{}, d.observe("invite", start, err)
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	inv, err := d.store.CreateInvite(ctx, listID, uid, ttl)
	return inv, d.observe("invite", start, err)
}

// AcceptInvite joins the current user to the invite's list.
func (d *Dispatcher) AcceptInvite(ctx context.Context, token string) (string, error) {
	start := time.Now()
	uid, err := d.currentUser(ctx)
	if err != nil {
		return "", d.observe("accept_invite", start, err)
	}
	listID, err := d.store.AcceptInvite(ctx, token, uid)
	return listID, d.observe("accept_invite", start, err)
}

// RegisterProfile records the current user's profile.
func (d *Dispatcher) RegisterProfile(ctx context.Context, email, displayName string) (model.Profile, error) {
	start := time.Now()
	uid, err := d.currentUser(ctx)
	if err != nil {
		return model.Profile{}, d.observe("register", start, err)
	}
	p, err := d.store.UpsertProfile(ctx, model.Profile{ID: uid, Email: email, DisplayName: displayName})
	return p, d.observe("register", start, err)
}
