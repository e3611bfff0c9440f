package workdaysync

import (
	"context"
	"fmt"

	"workday-sync/lib/configutil"
	"workday-sync/lib/workday"
)

// SessionProvider yields the authenticated Workday session a run uses.
type SessionProvider interface {
	Session(ctx context.Context) (workday.Session, error)
}

// StaticSession is a session captured ahead of time and stored as json5:
//
//	{
//	  cookies: { PLAY_SESSION: "...", "wd-browser-id": "..." },
//	  locator: "/gatech/...",
//	}
type StaticSession struct {
	Path string
}

func (s StaticSession) Session(ctx context.Context) (workday.Session, error) {
	session, err := configutil.ReadConfig[workday.Session](s.Path)
	if err != nil {
		return workday.Session{}, fmt.Errorf("read session %s: %w", s.Path, err)
	}
	err = session.Validate()
	if err != nil {
		return workday.Session{}, fmt.Errorf("session %s: %w", s.Path, err)
	}
	return session, nil
}
