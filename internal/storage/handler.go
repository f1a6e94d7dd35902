package storage

import "bookmark-manager/pkg/types"

// ChangeHandler is implemented by components that need to be notified of committed row changes
type ChangeHandler interface {
	HandleChange(event types.ChangeEvent)
}
