package main

import (
	"bookmark-manager/internal/config"
	"bookmark-manager/internal/export"
	"bookmark-manager/internal/service"
	"bookmark-manager/pkg/types"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cli/browser"
	"github.com/spf13/cobra"
)

// withService loads the collection and runs fn against it
func withService(ctx context.Context, fn func(a *app, svc *service.BookmarkService) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.openService(ctx, printNotifier{})
	if err != nil {
		return err
	}
	if err := svc.Refresh(ctx); err != nil {
		return err
	}
	return fn(a, svc)
}

// resolveID finds the bookmark whose id equals ref or starts with it
func resolveID(bookmarks []types.Bookmark, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty bookmark id")
	}

	var matches []string
	for _, b := range bookmarks {
		if b.ID == ref {
			return b.ID, nil
		}
		if strings.HasPrefix(b.ID, ref) {
			matches = append(matches, b.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no bookmark matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("id %q is ambiguous: %d bookmarks match", ref, len(matches))
}

func find(svc *service.BookmarkService, id string) (types.Bookmark, bool) {
	for _, b := range svc.Bookmarks() {
		if b.ID == id {
			return b, true
		}
	}
	return types.Bookmark{}, false
}

type viewFlags struct {
	search string
	sort   string
	mode   string
	dark   bool
}

func (f *viewFlags) register(cmd *cobra.Command) {
	defaults := service.DefaultPreferences()
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "only show bookmarks whose title, url or domain contains this")
	cmd.Flags().StringVar(&f.sort, "sort", string(defaults.Sort), "sort by date, title or domain")
	cmd.Flags().StringVar(&f.mode, "view", string(defaults.Mode), "grid or list")
	cmd.Flags().BoolVar(&f.dark, "dark", false, "use the dark theme")
}

func (f *viewFlags) apply(svc *service.BookmarkService) error {
	if err := svc.SetSort(service.SortKey(f.sort)); err != nil {
		return err
	}
	if err := svc.SetViewMode(service.ViewMode(f.mode)); err != nil {
		return err
	}
	if f.dark && svc.Preferences().Theme != service.ThemeDark {
		svc.ToggleTheme()
	}
	svc.SetSearch(f.search)
	return nil
}

func listCmd() *cobra.Command {
	var flags viewFlags

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List bookmarks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				if err := flags.apply(svc); err != nil {
					return err
				}
				renderView(os.Stdout, svc.View(), svc.Preferences(), svc.Len())
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func addCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a bookmark",
		Long: `Adds a new bookmark. Without --title the page title is fetched,
falling back to the URL's domain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				created, err := svc.Add(cmd.Context(), title, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s\n", shortID(created.ID), created.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "title (default: fetched from the page)")
	return cmd
}

func editCmd() *cobra.Command {
	var title, url string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a bookmark's title or url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" && url == "" {
				return errors.New("nothing to change: pass --title and/or --url")
			}
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				id, err := resolveID(svc.Bookmarks(), args[0])
				if err != nil {
					return err
				}
				current, _ := find(svc, id)
				if title == "" {
					title = current.Title
				}
				if url == "" {
					url = current.URL
				}
				return svc.Edit(cmd.Context(), id, title, url)
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&url, "url", "u", "", "new url")
	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete bookmarks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				ids := make([]string, 0, len(args))
				for _, ref := range args {
					id, err := resolveID(svc.Bookmarks(), ref)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}

				if len(ids) == 1 {
					return svc.Delete(cmd.Context(), ids[0])
				}
				for _, id := range ids {
					if !svc.IsSelected(id) {
						svc.ToggleSelection(id)
					}
				}
				return svc.BulkDelete(cmd.Context())
			})
		},
	}
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <id>",
		Short: "Open a bookmark in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				id, err := resolveID(svc.Bookmarks(), args[0])
				if err != nil {
					return err
				}
				b, _ := find(svc, id)
				return browser.OpenURL(b.URL)
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all bookmarks to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(a *app, svc *service.BookmarkService) error {
				if output == "-" {
					return svc.Export(os.Stdout, f)
				}
				if output == "" {
					output = export.FileName(f, time.Now())
				}

				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				if err := svc.Export(file, f); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Printf("Exported %d bookmarks to %s\n", svc.Len(), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: bookmarks-<date>.<ext>)")
	return cmd
}

func watchCmd() *cobra.Command {
	var flags viewFlags
	var interval time.Duration
	var mirrorDir, mirrorFormat string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show bookmarks and follow changes from other sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("interval") {
				v.Set(config.KeyRefreshInterval, interval)
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			redraw := make(chan struct{}, 1)
			requestRedraw := func() {
				select {
				case redraw <- struct{}{}:
				default:
				}
			}

			toaster := service.NewToaster(a.cfg.NoticeTTL, func(*types.Notice) { requestRedraw() })
			svc, err := a.openService(cmd.Context(), toaster)
			if err != nil {
				return err
			}
			if err := flags.apply(svc); err != nil {
				return err
			}
			svc.RegisterHandler(service.ViewChangeFunc(func([]types.Bookmark) { requestRedraw() }))

			if mirrorDir != "" {
				format, err := export.ParseFormat(mirrorFormat)
				if err != nil {
					return err
				}
				mirror, err := export.NewMirror(svc, export.MirrorConfig{
					Dir:      mirrorDir,
					Interval: time.Minute,
					Format:   format,
					Logger:   a.logger("mirror"),
				})
				if err != nil {
					return err
				}
				svc.RegisterHandler(mirror)
				defer mirror.Stop()
				defer func() {
					// final write after the engine stops
					if err := mirror.Sync(); err != nil {
						fmt.Fprintf(os.Stderr, "mirror: %v\n", err)
					}
				}()
				if err := mirror.Start(cmd.Context()); err != nil {
					return err
				}
			}

			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-redraw:
					// clear screen, cursor home
					fmt.Print("\033[H\033[2J")
					fmt.Printf("%s: watching for changes (ctrl+c to quit)\n\n", svc.User().Email)
					renderView(os.Stdout, svc.View(), svc.Preferences(), svc.Len())
					if n, ok := toaster.Current(); ok {
						renderNotice(os.Stdout, &n)
					}
				}
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 0, "also refresh periodically (e.g. 30s)")
	cmd.Flags().StringVar(&mirrorDir, "mirror", "", "keep a copy of the collection in this directory (e.g. a notes vault)")
	cmd.Flags().StringVar(&mirrorFormat, "mirror-format", "markdown", "json or markdown")
	return cmd
}
