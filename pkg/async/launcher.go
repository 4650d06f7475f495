package async

//go:generate mockgen -destination=../mocks/mock_launcher.go -package=mocks github.com/poltergeist/taskmon/pkg/async Launcher

// Launcher runs work on another goroutine.
//
// Launch must either arrange for fn to run exactly once and return nil, or not run
// fn at all and return an error.
type Launcher interface {
	Launch(fn func()) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(fn func()) error

// Launch calls l(fn).
func (l LauncherFunc) Launch(fn func()) error { return l(fn) }

// GoLauncher starts every function on a new goroutine and never refuses.
var GoLauncher Launcher = LauncherFunc(func(fn func()) error {
	go fn()
	return nil
})
