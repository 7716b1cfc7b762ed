package commons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LerianStudio/beneficiary-pay/pkg/log"
)

var (
	ErrLoggerNil    = errors.New("logger is nil")
	ErrNilLauncher  = errors.New("launcher is nil")
	ErrEmptyApp     = errors.New("app name is empty")
	ErrNilApp       = errors.New("app is nil")
	ErrConfigFailed = errors.New("launcher configuration failed")
)

// App is a deployable component started by the Launcher.
type App interface {
	Run(launcher *Launcher) error
}

type LauncherOption func(l *Launcher)

func WithLogger(logger log.Logger) LauncherOption {
	return func(l *Launcher) {
		l.Logger = logger
	}
}

// RunApp registers an application. Registration errors are surfaced by RunWithError.
func RunApp(name string, app App) LauncherOption {
	return func(l *Launcher) {
		if err := l.Add(name, app); err != nil {
			l.configErrors = append(l.configErrors, fmt.Errorf("add app %q: %w", name, err))
		}
	}
}

// Launcher runs every registered App concurrently and waits for all of them.
type Launcher struct {
	Logger       log.Logger
	apps         map[string]App
	configErrors []error
}

func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{apps: make(map[string]App)}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Launcher) Add(appName string, a App) error {
	if l == nil {
		return ErrNilLauncher
	}

	if strings.TrimSpace(appName) == "" {
		return ErrEmptyApp
	}

	if a == nil {
		return ErrNilApp
	}

	if l.apps == nil {
		l.apps = make(map[string]App)
	}

	l.apps[appName] = a

	return nil
}

// RunWithError starts every app and blocks until all of them return. App
// errors are logged and joined into the returned error.
func (l *Launcher) RunWithError() error {
	if l == nil {
		return ErrNilLauncher
	}

	if l.Logger == nil {
		return ErrLoggerNil
	}

	if len(l.configErrors) > 0 {
		return errors.Join(append([]error{ErrConfigFailed}, l.configErrors...)...)
	}

	ctx := context.Background()
	l.Logger.Log(ctx, log.LevelInfo, "starting apps", log.Int("count", len(l.apps)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, app := range l.apps {
		wg.Add(1)

		go func(name string, app App) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("app %q panicked: %v", name, r))
					mu.Unlock()
				}
			}()

			l.Logger.Log(ctx, log.LevelInfo, "app starting", log.String("app", name))

			if err := app.Run(l); err != nil {
				l.Logger.Log(ctx, log.LevelError, "app error", log.String("app", name), log.Err(err))

				mu.Lock()
				errs = append(errs, fmt.Errorf("app %q: %w", name, err))
				mu.Unlock()
			}

			l.Logger.Log(ctx, log.LevelInfo, "app finished", log.String("app", name))
		}(name, app)
	}

	wg.Wait()

	l.Logger.Log(ctx, log.LevelInfo, "launcher terminated")

	return errors.Join(errs...)
}
