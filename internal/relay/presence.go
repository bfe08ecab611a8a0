package relay

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/registry"
)

// Connect registers the session, marks the user online and sends the
// online snapshot to everyone else and to the new connection.
func (r *Relay) Connect(ctx context.Context, s Session) error {
	uid := s.User.UserID
	mu := r.presenceLock(uid)
	mu.Lock()
	err := r.registry.Register(ctx, uid, s.Ref)
	if err == nil {
		_, err = r.online.Add(ctx, uid)
		if err != nil {
			err = fmt.Errorf("mark online %s: %w", uid, err)
		}
	} else {
		err = fmt.Errorf("register %s: %w", uid, err)
	}
	mu.Unlock()
	if err != nil {
		return err
	}
	r.log.Infow("user connected", "user_id", uid, "conn_id", s.Ref.ConnID, "instance", s.Ref.Instance)

	snapshot, err := r.online.List(ctx)
	if err != nil {
		return fmt.Errorf("list online: %w", err)
	}
	if err := r.out.Broadcast(ctx, s.Ref, domain.EventOnlineUsers, snapshot); err != nil {
		r.log.Warnw("online broadcast failed", "user_id", uid, "error", err)
	}
	r.emit(ctx, []registry.ConnRef{s.Ref}, domain.EventOnlineUsers, snapshot)
	return nil
}

// Disconnect undoes Connect. When a newer session already replaced this
// one in the registry the user stays online and nothing is broadcast.
func (r *Relay) Disconnect(ctx context.Context, s Session) error {
	uid := s.User.UserID
	mu := r.presenceLock(uid)
	mu.Lock()
	gone, err := r.markOffline(ctx, s)
	mu.Unlock()
	if err != nil || !gone {
		return err
	}
	r.log.Infow("user disconnected", "user_id", uid, "conn_id", s.Ref.ConnID)

	snapshot, err := r.online.List(ctx)
	if err != nil {
		return fmt.Errorf("list online: %w", err)
	}
	if err := r.out.Broadcast(ctx, s.Ref, domain.EventOnlineUsers, snapshot); err != nil {
		r.log.Warnw("online broadcast failed", "user_id", uid, "error", err)
	}
	return nil
}

// markOffline unregisters s and drops the user from the online set. It
// reports false when a newer session owns the user, including one registered
// by another instance while the set was being updated.
func (r *Relay) markOffline(ctx context.Context, s Session) (bool, error) {
	uid := s.User.UserID
	removed, err := r.registry.Unregister(ctx, uid, s.Ref)
	if err != nil {
		return false, fmt.Errorf("unregister %s: %w", uid, err)
	}
	if !removed {
		r.log.Infow("stale session closed, newer connection kept", "user_id", uid, "conn_id", s.Ref.ConnID)
		return false, nil
	}
	if _, err := r.online.Remove(ctx, uid); err != nil {
		return false, fmt.Errorf("mark offline %s: %w", uid, err)
	}

	ref, ok, err := r.registry.Lookup(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", uid, err)
	}
	if !ok {
		return true, nil
	}
	if _, err := r.online.Add(ctx, uid); err != nil {
		return false, fmt.Errorf("mark online %s: %w", uid, err)
	}
	r.log.Infow("user reconnected during disconnect, kept online", "user_id", uid, "conn_id", ref.ConnID)
	return false, nil
}

// JoinChat adds req.UserID to the online set and sends the whole set to the
// given members only.
func (r *Relay) JoinChat(ctx context.Context, s Session, req domain.MembershipRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return r.fail(ctx, s, "Invalid chat join", err)
	}
	if _, err := r.online.Add(ctx, req.UserID); err != nil {
		return fmt.Errorf("mark online %s: %w", req.UserID, err)
	}
	return r.sendOnlineTo(ctx, req.Members)
}

// LeaveChat removes req.UserID from the online set and sends the whole set
// to the given members only.
func (r *Relay) LeaveChat(ctx context.Context, s Session, req domain.MembershipRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return r.fail(ctx, s, "Invalid chat leave", err)
	}
	if _, err := r.online.Remove(ctx, req.UserID); err != nil {
		return fmt.Errorf("mark offline %s: %w", req.UserID, err)
	}
	return r.sendOnlineTo(ctx, req.Members)
}

func (r *Relay) sendOnlineTo(ctx context.Context, members []string) error {
	snapshot, err := r.online.List(ctx)
	if err != nil {
		return fmt.Errorf("list online: %w", err)
	}
	r.emit(ctx, r.lookupMany(ctx, members), domain.EventOnlineUsers, snapshot)
	return nil
}

// OnlineUsers returns the current snapshot.
func (r *Relay) OnlineUsers(ctx context.Context) ([]string, error) {
	return r.online.List(ctx)
}

func (r *Relay) IsOnline(ctx context.Context, userID string) (bool, error) {
	return r.online.IsOnline(ctx, userID)
}
