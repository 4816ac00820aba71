package authorization

import (
	"context"
	"errors"
)

// Service decides whether an authenticated principal may perform action on object.
type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}

// Actor is an authenticated caller and the roles it holds.
type Actor struct {
	Type  string
	ID    string
	Roles []string
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrForbidden     = errors.New("forbidden")
)
