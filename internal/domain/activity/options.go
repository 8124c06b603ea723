package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	RecordID     *string
	SessionID    *string
	Actor        string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
