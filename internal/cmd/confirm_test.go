package cmd

import (
	"context"
	"errors"
	"testing"
)

func stubConfirm(t *testing.T, answer bool, err error) *[]string {
	t.Helper()
	orig := confirmFn
	t.Cleanup(func() { confirmFn = orig })
	var asked []string
	confirmFn = func(_ context.Context, question string) (bool, error) {
		asked = append(asked, question)
		return answer, err
	}
	return &asked
}

func TestConfirmDestructive(t *testing.T) {
	promptErr := errors.New("stdin closed")
	cases := []struct {
		name      string
		flags     *RootFlags
		answer    bool
		promptErr error
		wantCode  int
		wantAsked bool
	}{
		{name: "force", flags: &RootFlags{Force: true}},
		{name: "no input", flags: &RootFlags{NoInput: true}, wantCode: exitCodeUsage},
		{name: "confirmed", flags: &RootFlags{}, answer: true, wantAsked: true},
		{name: "declined", flags: &RootFlags{}, wantCode: exitCodeError, wantAsked: true},
		{name: "nil flags", answer: true, wantAsked: true},
		{name: "prompt error", flags: &RootFlags{}, promptErr: promptErr, wantCode: exitCodeError, wantAsked: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			asked := stubConfirm(t, tc.answer, tc.promptErr)
			err := confirmDestructive(context.Background(), tc.flags, "clear history")
			if got := ExitCode(err); got != tc.wantCode {
				t.Fatalf("exit code = %d (%v), want %d", got, err, tc.wantCode)
			}
			if (len(*asked) > 0) != tc.wantAsked {
				t.Fatalf("asked = %v, want prompt %v", *asked, tc.wantAsked)
			}
			if tc.wantAsked && (*asked)[0] != "Proceed to clear history?" {
				t.Fatalf("unexpected prompt %q", (*asked)[0])
			}
			if tc.promptErr != nil && !errors.Is(err, tc.promptErr) {
				t.Fatalf("prompt error not returned: %v", err)
			}
		})
	}
}

func TestConfirmDestructive_DryRunReportsAndStops(t *testing.T) {
	asked := stubConfirm(t, true, nil)
	out := captureStdout(t, func() {
		err := confirmDestructive(jsonContext(), &RootFlags{DryRun: true, Force: true}, "delete batch abc")
		var ee *ExitError
		if !errors.As(err, &ee) || ee.Code != exitCodeOK {
			t.Fatalf("expected exit 0, got %v", err)
		}
	})
	if got := decodeJSON(t, out); got["op"] != "delete batch abc" || got["dry_run"] != true {
		t.Fatalf("unexpected report: %v", got)
	}
	if len(*asked) != 0 {
		t.Fatalf("dry run should not prompt")
	}
}
