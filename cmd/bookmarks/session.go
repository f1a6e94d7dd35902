package main

import (
	"bookmark-manager/internal/config"
	"bookmark-manager/internal/feed"
	"bookmark-manager/internal/fetcher"
	"bookmark-manager/internal/remote"
	"bookmark-manager/internal/remote/httpclient"
	"bookmark-manager/internal/service"
	"bookmark-manager/internal/storage"
	"bookmark-manager/internal/storage/sqlite"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// connect returns a signed-in remote client for the configured mode
func (a *app) connect(ctx context.Context) (remote.Client, types.User, error) {
	if a.cfg.Mode == config.ModeRemote {
		return a.connectRemote(ctx)
	}
	return a.connectLocal(ctx)
}

func (a *app) connectLocal(ctx context.Context) (remote.Client, types.User, error) {
	if a.cfg.Email == "" {
		return nil, types.User{}, errors.New("local mode needs an identity: set --email or BOOKMARKS_EMAIL")
	}

	store, err := sqlite.New(storage.Config{DBPath: a.cfg.DBPath})
	if err != nil {
		return nil, types.User{}, fmt.Errorf("open database: %w", err)
	}
	a.onClose(store)

	user, err := store.FindOrCreateUser(ctx, a.cfg.Email)
	if err != nil {
		return nil, types.User{}, err
	}

	hub := feed.NewHub(a.logger("feed"))
	hubCtx, cancel := context.WithCancel(context.Background())
	a.onClose(closerFunc(func() error { cancel(); return nil }))
	go hub.Run(hubCtx)
	store.RegisterHandler(hub)

	// Other bookmarks processes write the same file
	owner := user.ID
	watcher, err := sqlite.NewWatcher(a.cfg.DBPath, sqlite.WatcherConfig{
		OnChange: func() { hub.HandleExternalChange(owner) },
		Logger:   a.logger("sqlite"),
	})
	if err != nil {
		return nil, types.User{}, err
	}
	if err := watcher.Start(); err != nil {
		watcher.Close()
		return nil, types.User{}, err
	}
	a.onClose(watcher)

	return remote.NewLocal(store, hub, *user), *user, nil
}

func (a *app) remoteClient(session httpclient.Session) *httpclient.Client {
	path := a.cfg.SessionPath()
	return httpclient.New(httpclient.Config{
		BaseURL: a.cfg.ServerURL,
		Token:   session.Token,
		Logger:  a.logger("client"),
		OnTokenChange: func(token string) {
			session.Token = token
			if err := httpclient.SaveSession(path, session); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		},
	})
}

func (a *app) connectRemote(ctx context.Context) (remote.Client, types.User, error) {
	session, err := httpclient.LoadSession(a.cfg.SessionPath())
	if err != nil {
		return nil, types.User{}, err
	}
	if session.Token == "" {
		return nil, types.User{}, errNotSignedIn
	}

	client := a.remoteClient(session)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, types.User{}, err
	}
	if user == nil {
		return nil, types.User{}, errNotSignedIn
	}
	return client, *user, nil
}

var errNotSignedIn = errors.New("not signed in: run `bookmarks login <email>`")

// openService connects and builds an engine with the collection loaded
func (a *app) openService(ctx context.Context, notifier service.Notifier) (*service.BookmarkService, error) {
	client, user, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}

	svc := service.New(client, user, service.Config{
		Titles:          fetcher.New(a.cfg.FetchTimeout),
		Notifier:        notifier,
		RefreshInterval: a.cfg.RefreshInterval,
		Logger:          a.logger("service"),
	})
	return svc, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// printNotifier writes notices for one-shot commands
type printNotifier struct{}

func (printNotifier) Notify(n types.Notice) {
	if n.Kind == types.NoticeError {
		return // the command's error is reported by main
	}
	fmt.Fprintln(os.Stderr, n.Message)
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			session := httpclient.Session{}
			client := a.remoteClient(session)
			user, err := client.Login(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			session = httpclient.Session{Token: client.Token(), User: *user}
			if err := httpclient.SaveSession(a.cfg.SessionPath(), session); err != nil {
				return err
			}
			fmt.Printf("Signed in as %s\n", user.Email)
			if a.cfg.Mode != config.ModeRemote {
				fmt.Println("Set mode: remote (or BOOKMARKS_MODE=remote) to use the server")
			}
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := httpclient.LoadSession(a.cfg.SessionPath())
			if err != nil {
				return err
			}
			if session.Token == "" {
				fmt.Println("Not signed in")
				return nil
			}

			client, user, err := a.connectRemote(cmd.Context())
			if errors.Is(err, errNotSignedIn) {
				fmt.Println("Session already expired")
				return httpclient.SaveSession(a.cfg.SessionPath(), httpclient.Session{})
			}
			if err != nil {
				return err
			}

			svc := service.New(client, user, service.Config{Logger: a.logger("service")})
			if err := svc.SignOut(cmd.Context()); err != nil {
				return err
			}
			if err := httpclient.SaveSession(a.cfg.SessionPath(), httpclient.Session{}); err != nil {
				return err
			}
			fmt.Printf("Signed out %s\n", user.Email)
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			_, user, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s, %s mode)\n", user.Email, user.ID, a.cfg.Mode)
			return nil
		},
	}
}
