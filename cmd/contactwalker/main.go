/*
contactwalker walks the listing pages of a site, opens every listed item and
fills in its contact form.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jakopako/contactwalker/internal/browser"
	"github.com/jakopako/contactwalker/internal/config"
	"github.com/jakopako/contactwalker/internal/extract"
	"github.com/jakopako/contactwalker/internal/log"
	"github.com/jakopako/contactwalker/internal/notify"
	"github.com/jakopako/contactwalker/internal/output"
	"github.com/jakopako/contactwalker/internal/run"
	"github.com/jakopako/contactwalker/internal/server"
	"github.com/jakopako/contactwalker/internal/types"
	"github.com/jakopako/contactwalker/internal/utils"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`
	EnvFile string      `short:"e" long:"env-file" help:"A .env file whose variables are loaded before the configuration is read." type:"path"`

	Run   RunCmd   `cmd:"" help:"Run a single walk in the foreground."`
	Serve ServeCmd `cmd:"" help:"Serve the http control surface."`
	Check CheckCmd `cmd:"" help:"Validate the configuration and print the pages that would be visited."`
}

type RunCmd struct {
	Config string `short:"c" help:"The location of the configuration file. Without it only environment variables are used." type:"path"`
	URL    string `short:"u" long:"url" help:"Overrides the start url of the configuration."`
	Pages  int    `short:"p" help:"Overrides the number of pages to process."`
	Static bool   `short:"s" help:"Load pages without a browser. No js is executed and nothing is submitted."`
	Stdout bool   `short:"o" help:"If set to true the run report will be written to stdout despite any other existing writer configurations."`
}

func (rc *RunCmd) Run() error {
	c, err := loadConfig(rc.Config, rc.Static)
	if err != nil {
		return err
	}
	if rc.URL != "" {
		c.Run.StartURL = rc.URL
	}
	if rc.Pages > 0 {
		c.Run.Pages = rc.Pages
	}
	if err := c.Run.Validate(); err != nil {
		slog.Error(err.Error())
		return err
	}
	if rc.Stdout {
		c.Writer.Type = output.STDOUT_WRITER_TYPE
	}
	writer, err := output.NewWriter(&c.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	tabs, extractor, err := newStack(c)
	if err != nil {
		return err
	}
	defer tabs.Cancel()
	controller := run.NewController(tabs, extractor, &notify.LogNotifier{Logger: slog.Default()}, &c.Walk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := controller.Start(ctx, c.Run); err != nil {
		slog.Error(err.Error())
		return err
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			slog.Warn("interrupt received, stopping after the current item. Interrupt again to abort it")
			controller.Stop()
		case <-done:
			return
		}
		select {
		case <-sigs:
			slog.Warn("aborting")
			cancel()
		case <-done:
		}
	}()
	controller.Wait()
	close(done)

	state := controller.State()
	printSummary(state)
	if err := writer.Write(output.NewReport(c.Run, state)); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}

type ServeCmd struct {
	Config  string `short:"c" help:"The location of the configuration file. Without it only environment variables are used." type:"path"`
	Address string `short:"a" help:"Overrides the listen address of the configuration."`
	Static  bool   `short:"s" help:"Load pages without a browser. No js is executed and nothing is submitted."`
}

func (sc *ServeCmd) Run() error {
	c, err := loadConfig(sc.Config, sc.Static)
	if err != nil {
		return err
	}
	if sc.Address != "" {
		c.Server.Address = sc.Address
	}

	tabs, extractor, err := newStack(c)
	if err != nil {
		return err
	}
	defer tabs.Cancel()
	events := notify.NewBroadcaster(0)
	controller := run.NewController(tabs, extractor, notify.Multi{&notify.LogNotifier{Logger: slog.Default()}, events}, &c.Walk)
	defer controller.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(controller, events, c.Run).ListenAndServe(ctx, c.Server.Address)
}

type CheckCmd struct {
	Config string `short:"c" help:"The location of the configuration file. Without it only environment variables are used." type:"path"`
	Dump   bool   `short:"D" help:"Print the resolved configuration."`
}

func (cc *CheckCmd) Run() error {
	c, err := loadConfig(cc.Config, false)
	if err != nil {
		return err
	}
	if err := c.Run.Validate(); err != nil {
		slog.Error(err.Error())
		return err
	}
	if cc.Dump {
		if err := c.Dump(os.Stdout); err != nil {
			return err
		}
	}
	urls, err := run.PageURLs(c.Run, c.Walk.PageParam)
	if err != nil {
		return err
	}
	for _, u := range urls {
		fmt.Println(u)
	}
	if c.Site.Submit {
		slog.Warn("live submission is enabled, every processed contact form will be sent")
	}
	return nil
}

func loadConfig(path string, static bool) (*config.Config, error) {
	c, err := config.NewConfig(path)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	if static {
		c.Browser.Renderer = browser.StaticRenderer
	}
	if err := c.Validate(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return c, nil
}

// newStack returns the tab manager and the matching extractor for the
// configured renderer.
func newStack(c *config.Config) (browser.Manager, run.Extractor, error) {
	switch c.Browser.Renderer {
	case browser.StaticRenderer:
		host := browser.NewStaticHost(&c.Browser)
		return host, extract.NewExtractor(&c.Site, &extract.StaticExecutor{Host: host}), nil
	case browser.DynamicRenderer:
		host := browser.NewDynamicHost(&c.Browser)
		return host, extract.NewExtractor(&c.Site, &extract.DynamicExecutor{Host: host}), nil
	default:
		return nil, nil, fmt.Errorf("renderer '%s' not implemented", c.Browser.Renderer)
	}
}

func printSummary(state types.State) {
	slog.Info("printing run summary")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Status", "Name", "Phone", "Details"})

	red := []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}}
	yellow := []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}}

	counts := map[types.ItemStatus]int{}
	for i, l := range state.Logs {
		counts[l.Status]++
		details := l.URL
		if l.Error != "" {
			details = l.Error
		}
		row := []string{strconv.Itoa(i + 1), string(l.Status), l.UserName, l.UserPhone, utils.ShortenString(details, 60)}
		switch l.Status {
		case types.StatusError:
			table.Rich(row, red)
		case types.StatusSkipped:
			table.Rich(row, yellow)
		default:
			table.Append(row)
		}
	}
	table.SetFooter([]string{
		strconv.Itoa(len(state.Logs)),
		state.Status,
		fmt.Sprintf("%d success", counts[types.StatusSuccess]),
		fmt.Sprintf("%d skipped", counts[types.StatusSkipped]),
		fmt.Sprintf("%d errors", counts[types.StatusError]),
	})
	table.SetBorder(false)
	table.Render()
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name("contactwalker"),
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.InitializeDefaultLogger()

	if cli.EnvFile != "" {
		// variables that are already set take precedence
		if err := godotenv.Load(cli.EnvFile); err != nil {
			ctx.FatalIfErrorf(fmt.Errorf("error while loading env file: %w", err))
		}
	}

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
