package directory

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")
)

// User is a directory account as seen by the console.
type User struct {
	ID          string // account name (sAMAccountName / uid)
	DN          string
	DisplayName string
	Email       string
	Enabled     bool
	Locked      bool
	Groups      []string
	OrgUnit     string
}

// Group is a directory group with its member account names.
type Group struct {
	Name    string
	DN      string
	Members []string
}

// OrgUnit is an organizational unit node.
type OrgUnit struct {
	Name string
	DN   string
}

// Client is the directory collaborator consumed by the worker and the
// operator surfaces. Implementations own their own timeout and retry policy;
// any returned error is treated as failure of the attempted operation.
type Client interface {
	SearchUsers(ctx context.Context, query string) ([]*User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	CreateUser(ctx context.Context, user *User, password string) error
	ModifyUser(ctx context.Context, userID string, attrs map[string]string) error
	DeleteUser(ctx context.Context, userID string) error

	DisableAccount(ctx context.Context, userID string) error
	EnableAccount(ctx context.Context, userID string) error
	UnlockAccount(ctx context.Context, userID string) error
	MoveUser(ctx context.Context, userID, targetOU string) error

	ListGroups(ctx context.Context) ([]*Group, error)
	AddGroupMember(ctx context.Context, group, userID string) error
	RemoveGroupMember(ctx context.Context, group, userID string) error

	ListOrgUnits(ctx context.Context) ([]*OrgUnit, error)
}
