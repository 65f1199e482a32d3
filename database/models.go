package database

import "time"

// Role of a board member. Owners are implicit (boards.user_id) but the owner
// also gets a member row so visibility queries stay uniform.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Card priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Board is the top-level container of columns. Boards are archived, never
// hard-deleted, so activity history stays referentially intact.
type Board struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description,omitempty"`
	UserID          string    `db:"user_id" json:"userId"`
	BackgroundColor string    `db:"background_color" json:"backgroundColor,omitempty"`
	IsPublic        bool      `db:"is_public" json:"isPublic"`
	IsArchived      bool      `db:"is_archived" json:"isArchived"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`

	Columns []Column      `db:"-" json:"columns"`
	Members []BoardMember `db:"-" json:"members,omitempty"`
}

// Column is an ordered stage within a board.
type Column struct {
	ID          string `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	BoardID     string `db:"board_id" json:"boardId"`
	Order       int    `db:"position" json:"order"`
	Color       string `db:"color" json:"color,omitempty"`
	IsCollapsed bool   `db:"is_collapsed" json:"isCollapsed"`
	CardLimit   *int   `db:"card_limit" json:"cardLimit,omitempty"`

	Cards []Card `db:"-" json:"cards"`
}

// Card is a unit of work within a column.
type Card struct {
	ID             string     `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description,omitempty"`
	ColumnID       string     `db:"column_id" json:"columnId"`
	Order          int        `db:"position" json:"order"`
	DueDate        *string    `db:"due_date" json:"dueDate,omitempty"`
	AssignedUserID *string    `db:"assigned_user_id" json:"assignedUserId,omitempty"`
	Priority       string     `db:"priority" json:"priority"`
	EstimatedHours *float64   `db:"estimated_hours" json:"estimatedHours,omitempty"`
	ActualHours    *float64   `db:"actual_hours" json:"actualHours,omitempty"`
	IsCompleted    bool       `db:"is_completed" json:"isCompleted"`
	CompletedAt    *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`

	Tags         []Tag    `db:"-" json:"tags"`
	AssignedUser *Profile `db:"-" json:"assignedUser,omitempty"`
}

// Tag is a user-global label, reusable across cards.
type Tag struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	UserID    string    `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CardTag joins a card to a tag.
type CardTag struct {
	CardID    string    `db:"card_id" json:"cardId"`
	TagID     string    `db:"tag_id" json:"tagId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// BoardMember governs shared-board visibility and mutation rights.
type BoardMember struct {
	BoardID   string    `db:"board_id" json:"boardId"`
	UserID    string    `db:"user_id" json:"userId"`
	Role      string    `db:"role" json:"role"`
	InvitedBy string    `db:"invited_by" json:"invitedBy"`
	JoinedAt  time.Time `db:"joined_at" json:"joinedAt"`
	IsActive  bool      `db:"is_active" json:"isActive"`
}

// Activity is an append-only audit record for a board.
type Activity struct {
	ID         string    `db:"id" json:"id"`
	BoardID    string    `db:"board_id" json:"boardId"`
	UserID     string    `db:"user_id" json:"userId"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entityType"`
	EntityID   string    `db:"entity_id" json:"entityId"`
	Details    string    `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Profile mirrors the display fields of an authenticated user.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Avatar    string    `db:"avatar" json:"avatar,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// BoardPatch holds optional board updates; nil fields are left untouched.
type BoardPatch struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
	IsPublic        *bool   `json:"isPublic,omitempty"`
}

// ColumnPatch holds optional column updates.
type ColumnPatch struct {
	Title       *string `json:"title,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsCollapsed *bool   `json:"isCollapsed,omitempty"`
	CardLimit   *int    `json:"cardLimit,omitempty"`
	Order       *int    `json:"order,omitempty"`
}

// CardPatch holds optional card updates.
type CardPatch struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	DueDate        *string  `json:"dueDate,omitempty"`
	AssignedUserID *string  `json:"assignedUserId,omitempty"`
	Priority       *string  `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimatedHours,omitempty"`
	ActualHours    *float64 `json:"actualHours,omitempty"`
	IsCompleted    *bool    `json:"isCompleted,omitempty"`
}

// IsEmpty reports whether the patch carries no changes.
func (p BoardPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.BackgroundColor == nil && p.IsPublic == nil
}

func (p ColumnPatch) IsEmpty() bool {
	return p.Title == nil && p.Color == nil && p.IsCollapsed == nil && p.CardLimit == nil && p.Order == nil
}

func (p CardPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.AssignedUserID == nil &&
		p.Priority == nil && p.EstimatedHours == nil && p.ActualHours == nil && p.IsCompleted == nil
}

// ValidPriority reports whether s is one of the known card priorities.
func ValidPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
