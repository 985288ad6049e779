package models

// FolderQuery filters the folder list. RootOnly selects folders without a
// parent and wins over ParentID.
type FolderQuery struct {
	CategoryID *int64
	ParentID   *string
	RootOnly   bool
}

// Document list orderings.
const (
	OrderCreatedAsc  = "created_at"
	OrderCreatedDesc = "-created_at"
	OrderSizeAsc     = "file_size"
	OrderSizeDesc    = "-file_size"
)

// DocumentQuery filters the document list. RootOnly selects documents that
// are not in any folder and wins over FolderID.
type DocumentQuery struct {
	CategoryID *int64
	FolderID   *string
	RootOnly   bool
	Search     string
	Ordering   string
}

// ValidOrdering reports whether o is one of the supported orderings.
func ValidOrdering(o string) bool {
	switch o {
	case OrderCreatedAsc, OrderCreatedDesc, OrderSizeAsc, OrderSizeDesc:
		return true
	}
	return false
}

// NotificationQuery filters the notification list. Expired notifications
// are always excluded.
type NotificationQuery struct {
	UnreadOnly bool
	Type       NotificationType
	Priority   Priority
}
