package cli

import (
	"context"
	"errors"
	"os"
	"sync/atomic"

	"github.com/idilsaglam/tada/internal/auth"
	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/backend/sqlstore"
	"github.com/idilsaglam/tada/internal/client"
	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/feed"
	"github.com/idilsaglam/tada/internal/feed/wsfeed"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/view"
)

// conn is one command's view of the backend.
type conn struct {
	disp  *dispatch.Dispatcher
	feed  backend.Feed
	close func() error

	// sess receives feed transport errors and reconnects.
	sess atomic.Pointer[session.Session]
}

// localUser is the identity used against a local database when nobody
// logged in.
type localUser struct {
	creds *auth.Credentials
}

func (l localUser) CurrentUser(ctx context.Context) (string, error) {
	uid, err := l.creds.CurrentUser(ctx)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		if u := os.Getenv("USER"); u != "" {
			return u, nil
		}
		return "local", nil
	}
	return uid, err
}

// connect opens the configured backend. The change feed is only wired when
// live is set; one-shot commands never see events.
func (a *App) connect(ctx context.Context, live bool) (*conn, error) {
	c := &conn{}
	switch a.cfg.Driver {
	case config.DriverHTTP:
		ti, err := a.creds.Get()
		if err != nil {
			return nil, err
		}
		if ti == nil {
			return nil, auth.ErrNotLoggedIn
		}
		st, err := client.New(a.cfg.ServerURL, ti.Token, nil)
		if err != nil {
			return nil, err
		}
		c.disp = dispatch.New(st, a.creds, nil)
		c.close = func() error { return nil }
		if live {
			fc, err := wsfeed.NewClient(a.cfg.ServerURL, wsfeed.ClientOptions{
				Token:  ti.Token,
				Logger: a.logger,
				OnError: func(listID string, err error) {
					if s := c.sess.Load(); s != nil {
						s.FeedError(listID, err)
					}
				},
				OnReconnect: func(listID string) {
					if s := c.sess.Load(); s != nil && s.ListID() == listID {
						if err := s.Reload(ctx); err != nil {
							a.logger.Warn("reload after reconnect failed", "list", listID, "err", err)
						}
					}
				},
			})
			if err != nil {
				return nil, err
			}
			c.feed = fc
		}
	default:
		hub := feed.NewHub(a.logger)
		opts := []sqlstore.Option{sqlstore.WithPublisher(hub), sqlstore.WithLogger(a.logger)}
		var (
			st  *sqlstore.Store
			err error
		)
		if a.cfg.Driver == config.DriverPostgres {
			st, err = sqlstore.OpenPostgres(ctx, a.cfg.DSN, opts...)
		} else {
			if err := os.MkdirAll(a.cfg.Dir, 0o700); err != nil {
				return nil, err
			}
			st, err = sqlstore.OpenSQLite(ctx, a.cfg.DSN, opts...)
		}
		if err != nil {
			return nil, model.AsBackend("open", err)
		}
		c.disp = dispatch.New(st, localUser{creds: a.creds}, nil)
		c.close = st.Close
		if live {
			c.feed = hub
		}
	}
	return c, nil
}

// session builds a session over c, with the configured search tuning.
func (a *App) session(c *conn) *session.Session {
	s := session.New(c.disp, c.feed, session.Options{
		Logger: a.logger,
		Search: view.Options{Threshold: a.cfg.SearchThreshold},
	})
	c.sess.Store(s)
	return s
}
