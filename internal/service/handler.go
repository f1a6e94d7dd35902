package service

import "bookmark-manager/pkg/types"

// ViewChangeHandler is implemented by components that render the derived view.
// It is called after every state change with the freshly computed view.
type ViewChangeHandler interface {
	HandleViewChange(view []types.Bookmark)
}

// ViewChangeFunc adapts a function to ViewChangeHandler
type ViewChangeFunc func(view []types.Bookmark)

func (f ViewChangeFunc) HandleViewChange(view []types.Bookmark) { f(view) }
