package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"flag-scanner/internal/analysis"
	"flag-scanner/pkg/utils"
)

// TerminalChannel prints one coloured line per signal.
type TerminalChannel struct {
	out     io.Writer
	mu      sync.Mutex
	enabled bool
	bell    bool

	bull  *color.Color
	bear  *color.Color
	muted *color.Color
}

// NewTerminalChannel creates a terminal channel writing to out (stdout if nil).
func NewTerminalChannel(out io.Writer, colorEnabled bool) *TerminalChannel {
	if out == nil {
		out = os.Stdout
	}
	tc := &TerminalChannel{
		out:     out,
		enabled: true,
		bull:    color.New(color.FgGreen, color.Bold),
		bear:    color.New(color.FgRed, color.Bold),
		muted:   color.New(color.FgHiBlack),
	}
	if colorEnabled {
		tc.bull.EnableColor()
		tc.bear.EnableColor()
		tc.muted.EnableColor()
	} else {
		tc.bull.DisableColor()
		tc.bear.DisableColor()
		tc.muted.DisableColor()
	}
	return tc
}

// SetBellEnabled enables or disables the terminal bell.
func (tc *TerminalChannel) SetBellEnabled(enabled bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.bell = enabled
}

// SetEnabled enables or disables the channel.
func (tc *TerminalChannel) SetEnabled(enabled bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.enabled = enabled
}

func (tc *TerminalChannel) Name() string { return "terminal" }

func (tc *TerminalChannel) IsEnabled() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.enabled
}

// Publish writes the signal.
func (tc *TerminalChannel) Publish(ctx context.Context, s Signal) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	p := s.Pattern
	label, c := "BULL FLAG", tc.bull
	if p.Direction == analysis.PatternBearish {
		label, c = "BEAR FLAG", tc.bear
	}

	if tc.bell {
		fmt.Fprint(tc.out, "\a")
	}
	c.Fprintf(tc.out, "%-9s %-10s %-4s", label, s.Symbol, p.Timeframe)
	fmt.Fprintf(tc.out, " q=%3d pole=%s T4=%s target=%s ",
		p.QualityScore,
		utils.FormatPrice(p.PoleHeight),
		utils.FormatPrice(p.T4.Price),
		utils.FormatPrice(s.TargetPrice),
	)
	_, err := tc.muted.Fprintf(tc.out, "%s\n", p.T4.Time.UTC().Format("2006-01-02 15:04"))
	return err
}
