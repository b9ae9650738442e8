package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

// tapFunc registers one tap and reports the taps still needed.
type tapFunc func() (remaining int, done bool, err error)

// runTaps reads one line per tap from in until tap reports done. Progress
// is printed every progressEvery taps. Running out of input leaves the
// challenge incomplete.
func runTaps(in io.Reader, out io.Writer, total int, tap tapFunc) error {
	const progressEvery = 10
	fmt.Fprintf(out, "Press Enter %d times to continue (Ctrl-D to give up).\n", total)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		remaining, done, err := tap()
		if err != nil {
			return err
		}
		if done {
			fmt.Fprintln(out, "Challenge complete.")
			return nil
		}
		if remaining%progressEvery == 0 {
			fmt.Fprintf(out, "%d taps left\n", remaining)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: input closed", domain.ErrChallengeIncomplete)
}
