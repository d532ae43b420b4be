package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/config"
	"github.com/example/annotation-sync/internal/metadata"
	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/session"
	"github.com/example/annotation-sync/internal/translate"
	"github.com/example/annotation-sync/internal/types"
)

const AnnotCtlVersion = "0.1.0"

const usage = `Annotation control.

Commands are sent to the annotation server at --server, or SERVER_URL when
the flag is absent.

Usage:
    annotctl features <track> [--server=<url>]
    annotctl perform <command> <track> <id>... [--server=<url>]
        [--coord=<coord>] [--fmin=<fmin> --fmax=<fmax>]
        [--evidence-track=<evidence_track> --evidence=<ids>]
        [--yes]
    annotctl comments <track> <id> [--server=<url>]
    annotctl canned-comments <track> [--server=<url>]
    annotctl dbxrefs <track> <id> [--server=<url>]
    annotctl attributes <track> <id> [--server=<url>]
    annotctl history <track> <id>... [--server=<url>]
    annotctl set-name <track> <id> <value> [--server=<url>]
    annotctl set-symbol <track> <id> <value> [--server=<url>]
    annotctl set-description <track> <id> <value> [--server=<url>]
    annotctl set-status <track> <id> <value> [--server=<url>]
    annotctl add-comment <track> <id> <value> [--server=<url>]
    annotctl send <track> <file> [--server=<url>] [--yes]
    annotctl commands
    annotctl -h | --help
    annotctl --version

Options:
    -h --help                          Show this screen.
    --version                          Show version.
    --server=<url>                     Annotation server base url.
    --coord=<coord>                    Genome coordinate for split, make-intron and translation start.
    --fmin=<fmin>                      New start for resize.
    --fmax=<fmax>                      New end for resize.
    --evidence-track=<evidence_track>  Track holding evidence features.
    --evidence=<ids>                   Comma separated evidence feature ids.
    --yes                              Accept every confirmation without asking.

A send file holds one captured editor request body; "-" reads it from stdin.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], AnnotCtlVersion)
	if err != nil {
		panic(err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	if commands_, _ := opts.Bool("commands"); commands_ {
		listCommands()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, opts, logger, os.Stderr); err != nil {
		fail(err)
	}
}

// execute runs one command against a fresh session. The session is closed
// and recorded alerts are written to stderr before it returns, on success or
// failure.
func execute(ctx context.Context, opts docopt.Opts, logger zerolog.Logger, stderr io.Writer) error {
	c, err := connect(opts, logger)
	if err != nil {
		return err
	}

	track, _ := opts.String("<track>")
	if _, err = c.sess.OpenTrack(ctx, types.TrackID(track)); err == nil {
		err = c.run(ctx, opts, types.TrackID(track))
	}
	c.close(stderr)
	return err
}

type client struct {
	sess    *session.Session
	meta    *metadata.Service
	confirm *prompter
	alerts  *notify.Recorder
}

func connect(opts docopt.Opts, logger zerolog.Logger) (*client, error) {
	cfg, err := config.Load()
	if server, err2 := opts.String("--server"); err2 == nil && server != "" {
		cfg.ServerURL = server
		err = nil
	}
	if err != nil {
		return nil, err
	}
	yes, _ := opts.Bool("--yes")

	confirm := &prompter{yes: yes, in: bufio.NewReader(os.Stdin)}
	alerts := &notify.Recorder{}
	sess, err := session.New(session.Config{
		BaseURL:     cfg.ServerURL,
		PollTimeout: cfg.PollTimeout,
		EditTimeout: cfg.EditTimeout,
	}, notify.NewFanout(notify.Log{Logger: logger}, alerts), confirm, logger)
	if err != nil {
		return nil, err
	}
	return &client{
		sess:    sess,
		meta:    metadata.New(sess.Dispatcher(), cfg.MetadataCacheSize, logger),
		confirm: confirm,
		alerts:  alerts,
	}, nil
}

func (c *client) close(stderr io.Writer) {
	c.sess.Close()
	for _, alert := range c.alerts.AlertsSnapshot() {
		fmt.Fprintf(stderr, "alert: %s\n", alert)
	}
}

func (c *client) run(ctx context.Context, opts docopt.Opts, track types.TrackID) error {
	value, _ := opts.String("<value>")
	switch {
	case flag(opts, "features"):
		t, _ := c.sess.Track(track)
		return printJSON(featureTree(t.Store.Snapshot()))
	case flag(opts, "perform"):
		return c.perform(ctx, opts, track)
	case flag(opts, "comments"):
		return c.query(c.meta.Comments(ctx, track, firstID(opts)))
	case flag(opts, "canned-comments"):
		return c.query(c.meta.CannedComments(ctx, track))
	case flag(opts, "dbxrefs"):
		return c.query(c.meta.DBXrefs(ctx, track, firstID(opts)))
	case flag(opts, "attributes"):
		return c.query(c.meta.Attributes(ctx, track, firstID(opts)))
	case flag(opts, "history"):
		return c.query(c.meta.History(ctx, track, ids(opts)...))
	case flag(opts, "set-name"):
		return c.edit(ctx, operation.SetFeatureName(track, firstID(opts), value))
	case flag(opts, "set-symbol"):
		return c.edit(ctx, operation.SetFeatureSymbol(track, firstID(opts), value))
	case flag(opts, "set-description"):
		return c.edit(ctx, operation.SetFeatureDescription(track, firstID(opts), value))
	case flag(opts, "set-status"):
		return c.edit(ctx, operation.SetFeatureStatus(track, firstID(opts), value))
	case flag(opts, "add-comment"):
		return c.edit(ctx, operation.AddFeatureComments(track, firstID(opts), value))
	case flag(opts, "send"):
		path, _ := opts.String("<file>")
		return c.send(ctx, track, path)
	}
	return fmt.Errorf("no command selected")
}

func (c *client) perform(ctx context.Context, opts docopt.Opts, track types.TrackID) error {
	name, _ := opts.String("<command>")
	cmd, err := translate.ParseCommand(name)
	if err != nil {
		return err
	}
	t, _ := c.sess.Track(track)
	if _, err := t.Select(ids(opts)...); err != nil {
		return err
	}

	var coord *int64
	if raw, err := opts.String("--coord"); err == nil && raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse --coord: %w", err)
		}
		coord = &v
	}
	in := t.Selection.Input(track, coord)

	if raw, err := opts.String("--fmin"); err == nil && raw != "" {
		fmaxRaw, _ := opts.String("--fmax")
		fmin, err1 := strconv.ParseInt(raw, 10, 64)
		fmax, err2 := strconv.ParseInt(fmaxRaw, 10, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("parse resize bounds %q %q", raw, fmaxRaw)
		}
		in.Resize = &translate.Resize{Fmin: fmin, Fmax: fmax}
	}

	if evidenceTrack, err := opts.String("--evidence-track"); err == nil && evidenceTrack != "" {
		evidence, err := c.sess.OpenTrack(ctx, types.TrackID(evidenceTrack))
		if err != nil {
			return err
		}
		raw, _ := opts.String("--evidence")
		var evidenceIDs []types.FeatureID
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				evidenceIDs = append(evidenceIDs, types.FeatureID(part))
			}
		}
		records, err := evidence.Select(evidenceIDs...)
		if err != nil {
			return err
		}
		in.Evidence = records
	}

	res, err := c.sess.Perform(ctx, track, cmd, in, c.confirm.Confirm)
	if err != nil {
		return err
	}
	return printResult(res.Body)
}

func (c *client) edit(ctx context.Context, op operation.EditOperation) error {
	res, err := c.meta.Edit(ctx, op)
	if err != nil {
		return err
	}
	return printResult(res.Body)
}

// send replays a captured request body through the session's dispatcher.
func (c *client) send(ctx context.Context, track types.TrackID, path string) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	var op operation.EditOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return err
	}
	if op.Track == "" {
		op.Track = track
	}
	if op.Track != track {
		return fmt.Errorf("request targets track %q, not %q", op.Track, track)
	}

	res, err := c.sess.Execute(ctx, op, c.confirm.Confirm)
	if err != nil {
		return err
	}
	return printResult(res.Body)
}

func (c *client) query(body json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	return printResult(body)
}

// prompter asks on stdin unless every prompt was pre-accepted.
type prompter struct {
	yes bool
	in  *bufio.Reader
}

func (p *prompter) Confirm(prompt string) bool {
	if p.yes {
		fmt.Fprintf(os.Stderr, "%s yes\n", prompt)
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func listCommands() {
	for c := translate.CmdMerge; c <= translate.CmdResize; c++ {
		fmt.Println(c)
	}
}

func featureTree(features []types.Feature) []types.FeatureData {
	present := make(map[types.FeatureID]struct{}, len(features))
	for _, f := range features {
		present[f.ID] = struct{}{}
	}
	byParent := make(map[types.FeatureID][]types.Feature)
	var roots []types.Feature
	for _, f := range features {
		if _, owned := present[f.ParentID]; f.ParentID == "" || !owned {
			roots = append(roots, f)
			continue
		}
		byParent[f.ParentID] = append(byParent[f.ParentID], f)
	}
	var build func(f types.Feature) types.FeatureData
	build = func(f types.Feature) types.FeatureData {
		data := types.ToData(f, nil)
		for _, child := range byParent[f.ID] {
			data.Children = append(data.Children, build(child))
		}
		return data
	}
	out := make([]types.FeatureData, 0, len(roots))
	for _, f := range roots {
		out = append(out, build(f))
	}
	return out
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func ids(opts docopt.Opts) []types.FeatureID {
	raw, _ := opts["<id>"].([]string)
	out := make([]types.FeatureID, 0, len(raw))
	for _, id := range raw {
		out = append(out, types.FeatureID(id))
	}
	return out
}

func firstID(opts docopt.Opts) types.FeatureID {
	if all := ids(opts); len(all) > 0 {
		return all[0]
	}
	id, _ := opts.String("<id>")
	return types.FeatureID(id)
}

func printResult(body json.RawMessage) error {
	if len(body) == 0 {
		fmt.Println("ok")
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err = os.Stdout.Write(append(body, '\n'))
		return err
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "annotctl: %v\n", err)
	os.Exit(1)
}
