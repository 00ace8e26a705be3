package reminder

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Popup describes a reminder popup requested from the presentation layer.
type Popup struct {
	Title   string
	Message string
	Width   int
	Height  int
}

// Presenter is the presentation-layer collaborator. Implementations render
// the popup however they can: a log line, a Telegram message, a desktop
// window driven by an external front end.
type Presenter interface {
	// Show displays a new reminder popup.
	Show(ctx context.Context, p Popup) error

	// Focus re-raises the currently open popup.
	Focus(ctx context.Context) error
}

// MultiPresenter fans a request out to several presenters. Errors are
// collected; the last one wins.
type MultiPresenter []Presenter

func (m MultiPresenter) Show(ctx context.Context, p Popup) error {
	var err error
	for _, pr := range m {
		if pr == nil {
			continue
		}
		if e := pr.Show(ctx, p); e != nil {
			err = e
		}
	}
	return err
}

func (m MultiPresenter) Focus(ctx context.Context) error {
	var err error
	for _, pr := range m {
		if pr == nil {
			continue
		}
		if e := pr.Focus(ctx); e != nil {
			err = e
		}
	}
	return err
}

// LogPresenter renders popup lifecycle into the log. It is always available
// and never fails.
type LogPresenter struct {
	Logger zerolog.Logger
}

func (p LogPresenter) Show(_ context.Context, popup Popup) error {
	p.Logger.Info().
		Str("title", popup.Title).
		Str("message", popup.Message).
		Int("width", popup.Width).
		Int("height", popup.Height).
		Msg("reminder popup shown")
	return nil
}

func (p LogPresenter) Focus(_ context.Context) error {
	p.Logger.Info().Msg("reminder popup focused")
	return nil
}

// LastFireStore persists the last fire time across restarts so the interval
// is not reset by a daemon restart. Implementations must tolerate absence of
// a stored value.
type LastFireStore interface {
	LastFire(ctx context.Context) (time.Time, bool)
	SetLastFire(ctx context.Context, t time.Time) error
}
