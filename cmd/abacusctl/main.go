package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/codebuildervaibhav/abacus/internal/client"
	"github.com/codebuildervaibhav/abacus/internal/poller"
	"github.com/codebuildervaibhav/abacus/internal/render"
	"github.com/codebuildervaibhav/abacus/internal/types"
)

var (
	appName = "abacusctl"
	appSha  = "populated-at-link-time"
)

func main() {
	if err := makeApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func makeApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "submit datasets for quality analysis and follow their results"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "server",
			Value:  "http://localhost:5000",
			EnvVar: "ABACUS_SERVER",
			Usage:  "The base URL of the abacus API",
		},
		cli.DurationFlag{
			Name:   "interval",
			Value:  poller.DefaultInterval,
			EnvVar: "ABACUS_POLL_INTERVAL",
			Usage:  "How often a pending dataset is re-fetched",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "submit",
			Usage:     "Upload a CSV file",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "watch, w", Usage: "Follow the dataset until it finishes"},
			},
			Action: runSubmit,
		},
		{
			Name:      "watch",
			Usage:     "Follow a dataset until it finishes and print its report",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "page, p", Value: 1, Usage: "The sample row page to print"},
			},
			Action: runWatch,
		},
		{
			Name:   "list",
			Usage:  "List datasets, most recent first",
			Action: runList,
		},
	}
	return app
}

func newClient(appCtx *cli.Context) *client.Client {
	return client.New(appCtx.GlobalString("server"), nil)
}

func runSubmit(appCtx *cli.Context) error {
	path := appCtx.Args().First()
	if path == "" {
		return errors.New("a file to upload must be specified")
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := newClient(appCtx)
	id, err := c.Submit(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(appCtx.App.Writer, "File uploaded, processing started: %s\n", id)

	if !appCtx.Bool("watch") {
		return nil
	}
	return watch(ctx, appCtx, c, id, 1)
}

func runWatch(appCtx *cli.Context) error {
	id := appCtx.Args().First()
	if id == "" {
		return errors.New("a dataset id must be specified")
	}

	ctx, cancel := signalContext()
	defer cancel()
	return watch(ctx, appCtx, newClient(appCtx), id, appCtx.Int("page"))
}

func watch(ctx context.Context, appCtx *cli.Context, c *client.Client, id string, page int) error {
	out := appCtx.App.Writer
	renderer := render.New()

	p := poller.New(c,
		poller.WithInterval(appCtx.GlobalDuration("interval")),
		poller.WithErrorHandler(func(_ string, err error) {
			fmt.Fprintf(os.Stderr, "fetch failed, retrying: %v\n", err)
		}),
		poller.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))),
	)

	var last types.Status
	session := poller.NewSession(p, func(rec *types.Record) {
		if rec.Status == last {
			return
		}
		last = rec.Status
		if rec.Status == types.StatusPending {
			_ = renderer.Render(out, rec, 1)
		}
	})
	defer session.Close()

	session.Switch(id)
	session.SetPage(page)

	go func() {
		<-ctx.Done()
		session.Close()
	}()

	rec, err := session.Wait()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("dataset %s not found", id)
		}
		return err
	}
	if rec == nil || !rec.Status.IsTerminal() {
		return ctx.Err()
	}

	_, _, page = session.Current()
	return renderer.Render(out, rec, page)
}

func runList(appCtx *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	recs, err := newClient(appCtx).ListJobs(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(appCtx.App.Writer)
	table.SetHeader([]string{"ID", "File", "Status", "Score", "Rows", "Created"})
	for _, rec := range recs {
		table.Append([]string{
			rec.ID,
			rec.SourceName,
			string(rec.Status),
			optionalFloat(rec.QualityScore),
			optionalInt(rec.TotalRows),
			rec.CreatedAt.Local().Format(time.DateTime),
		})
	}
	table.Render()
	return nil
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
