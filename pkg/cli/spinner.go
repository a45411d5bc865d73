package cli

import (
	"github.com/charmbracelet/huh/spinner"
)

// RunSpinnerWithResult runs an action with a spinner and returns any error.
// In JSON mode the action runs without a spinner so stdout stays parseable.
func RunSpinnerWithResult(title string, fn func() error) error {
	if IsJSONOutput() {
		return fn()
	}

	var actionErr error

	err := spinner.New().
		Title("  " + title).
		Action(func() {
			actionErr = fn()
		}).
		Run()

	if err != nil {
		return err
	}
	return actionErr
}
