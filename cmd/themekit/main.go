// Command themekit builds, serves and packages a WordPress theme.
//
// Flags go before task names:
//
//	themekit -prod bundle
//	themekit -debounce=200ms dev
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goyek/goyek/v3"
	"github.com/goyek/x/boot"

	"github.com/fredrikaverpil/themekit/config"
	"github.com/fredrikaverpil/themekit/pk"
	"github.com/fredrikaverpil/themekit/tasks/theme"
)

var (
	prod     = flag.Bool("prod", false, "minify assets, optimize images and omit source maps")
	root     = flag.String("root", ".", "project root containing package.json")
	debounce = flag.Duration("debounce", 0, "coalesce watch events per file for this long")
	queue    = flag.Bool("queue", false, "run at most one rebuild per watch binding at a time")
	files    = flag.Bool("files", false, "list every file a task writes")
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

var (
	themeOnce sync.Once
	themeVal  *theme.Theme
	themeErr  error
)

// load builds the theme once, after flags are parsed.
func load() (*theme.Theme, error) {
	themeOnce.Do(func() {
		settings, err := config.Load(*root)
		if err != nil {
			themeErr = err
			return
		}
		themeVal, themeErr = theme.New(theme.Options{
			Production: *prod,
			Root:       *root,
			Settings:   settings,
			Debounce:   *debounce,
			Queue:      *queue,
			Logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		})
	})
	return themeVal, themeErr
}

func action(name string) func(a *goyek.A) {
	return func(a *goyek.A) {
		th, err := load()
		if err != nil {
			fail(a, err)
		}
		ctx := pk.WithOutput(a.Context(), taskOutput(a.Output()))
		ctx = pk.WithVerbose(ctx, *files)

		start := time.Now()
		err = th.Execute(ctx, name)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			status(os.Stderr, failStyle, "✗", "failed after", name, elapsed)
			fail(a, err)
		}
		status(os.Stdout, okStyle, "✓", "done in", name, elapsed)

		// serve returns once the proxy listens; keep it up until interrupted.
		if name == theme.NameServe {
			<-ctx.Done()
		}
	}
}

// taskOutput sends task progress to goyek's output and diagnostics to
// stderr.
func taskOutput(stdout io.Writer) *pk.Output {
	return &pk.Output{Stdout: stdout, Stderr: os.Stderr}
}

// fail reports err on stderr and stops the task.
func fail(a *goyek.A, err error) {
	fmt.Fprintln(os.Stderr, err)
	a.FailNow()
}

// status prints the final line of a task to f. Symbols and colors are only
// used on a terminal.
func status(f *os.File, style lipgloss.Style, symbol, verb, name string, elapsed time.Duration) {
	line := fmt.Sprintf("%s %s %s", name, verb, elapsed)
	if !pk.IsTerminal(f) {
		fmt.Fprintln(f, line)
		return
	}
	fmt.Fprintln(f, style.Render(symbol+" "+line))
}

func define() map[string]*goyek.DefinedTask {
	defined := make(map[string]*goyek.DefinedTask, len(theme.Names))
	for _, name := range theme.Names {
		defined[name] = goyek.Define(goyek.Task{
			Name:   name,
			Usage:  theme.Usage(name),
			Action: action(name),
		})
	}
	return defined
}

var tasks = define()

var _ = goyek.Define(goyek.Task{
	Name:  "plan",
	Usage: "print the task graph of every composed task",
	Action: func(a *goyek.A) {
		th, err := load()
		if err != nil {
			fail(a, err)
		}
		for _, task := range []*pk.Task{th.Dev, th.Build, th.Bundle} {
			fmt.Fprint(a.Output(), pk.Describe(task))
		}
	},
})

func main() {
	goyek.SetDefault(tasks[theme.NameDev])
	boot.Main()
}
