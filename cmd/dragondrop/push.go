package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dragondrop-dev/dragondrop/internal/config"
	"github.com/dragondrop-dev/dragondrop/internal/errors"
	"github.com/dragondrop-dev/dragondrop/pkg/dragondrop"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

type pushOptions struct {
	id        string
	url       string
	manualURL string
	method    string
	accepts   []string
	fields    []string
	multiple  bool
	manual    bool
	force     bool
	timeout   time.Duration
}

func pushCmd(g *globalOptions) *cobra.Command {
	opts := pushOptions{}

	cmd := &cobra.Command{
		Use:   "push FILE...",
		Short: "Upload files through a headless widget",
		Long: `Upload files the way a browser widget would.

The files are dropped on a widget, the drop is checked against
the accepted types, and an upload command is sent. Every widget
notification is printed as it happens.

With --manual the files are picked in the widget's file input
instead and submitted as a multipart form to the manual URL.

Examples:
  dragondrop push photo.png
  dragondrop push --url=http://localhost:8780/upload --field album=summer a.png
  dragondrop push --accept=image/png --multiple a.png b.png
  dragondrop push --manual notes.txt`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(g.dir)
			if err != nil {
				return err
			}
			_, err = runPush(cmd.Context(), cfg, opts, args, slog.Default())
			return err
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Widget id (default: random)")
	cmd.Flags().StringVar(&opts.url, "url", "", "Upload URL (default from dragondrop.json)")
	cmd.Flags().StringVar(&opts.manualURL, "manual-url", "", "Manual form URL (default from dragondrop.json)")
	cmd.Flags().StringVarP(&opts.method, "method", "X", "", "Upload HTTP method")
	cmd.Flags().StringSliceVar(&opts.accepts, "accept", nil, "Accepted MIME types")
	cmd.Flags().StringArrayVarP(&opts.fields, "field", "F", nil, "Extra body field as key=value")
	cmd.Flags().BoolVarP(&opts.multiple, "multiple", "m", false, "Upload every file, not only the first")
	cmd.Flags().BoolVar(&opts.manual, "manual", false, "Submit through the manual file input")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Upload even when the drop is invalid")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up after this long")

	return cmd
}

// widgetConfig merges flags over the config file's widget section.
func (o pushOptions) widgetConfig(cfg *config.Config) dragondrop.Config {
	w := dragondrop.Config{
		ID:        cfg.Widget.ID,
		Accepts:   cfg.Widget.Accepts,
		Multiple:  cfg.Widget.Multiple,
		URL:       cfg.Widget.URL,
		ManualURL: cfg.Widget.ManualURL,
		Method:    cfg.Widget.Method,
		OnClass:   cfg.Widget.OnClass,
		BusyClass: cfg.Widget.BusyClass,
	}
	if w.URL == "" {
		w.URL = cfg.URL() + cfg.Server.UploadPath
	}
	if w.ManualURL == "" {
		w.ManualURL = cfg.URL() + cfg.Server.ManualPath
	}

	if o.id != "" {
		w.ID = o.id
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if o.url != "" {
		w.URL = o.url
	}
	if o.manualURL != "" {
		w.ManualURL = o.manualURL
	}
	if o.method != "" {
		w.Method = o.method
	}
	if len(o.accepts) > 0 {
		w.Accepts = o.accepts
	}
	if o.multiple {
		w.Multiple = true
	}
	return w
}

// parseFields turns key=value pairs into the upload's extra fields.
// Values that parse as JSON numbers or booleans keep that type.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Newf(errors.CategoryCLI, "invalid field %q: want key=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			extra[key] = value == "true"
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				extra[key] = n
			} else {
				extra[key] = value
			}
		}
	}
	return extra, nil
}

// runPush drops or picks the files on a headless widget, triggers the upload
// and returns the success body.
func runPush(ctx context.Context, cfg *config.Config, opts pushOptions, paths []string, logger *slog.Logger) (any, error) {
	if len(paths) == 0 {
		return nil, errors.New("D040")
	}

	extra, err := parseFields(opts.fields)
	if err != nil {
		return nil, err
	}

	files := make([]dragondrop.File, 0, len(paths))
	for _, p := range paths {
		f, err := dragondrop.OpenFile(p)
		if err != nil {
			return nil, errors.New("D041").WithDetail(p + " could not be opened").Wrap(err)
		}
		files = append(files, f)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	bus := notify.New()
	stopTap := bus.Tap(func(ev notify.Event) {
		info("%-14s %s", ev.Key.String(), describe(ev.Payload))
	})
	defer stopTap()

	wcfg := opts.widgetConfig(cfg)
	w, err := dragondrop.New(wcfg,
		dragondrop.WithBus(bus),
		dragondrop.WithLogger(logger),
		dragondrop.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		w.Close()
		w.Wait()
	}()

	coord := dragondrop.NewCoordinator(bus)
	h := coord.For(wcfg.ID)

	if opts.manual {
		w.Input().Change(files...)
	} else {
		var drop dragondrop.Drop
		unsub := h.ListenToDrop(func(d dragondrop.Drop) { drop = d })
		w.Drop(&dragondrop.DragEvent{Files: files})
		unsub()

		if !drop.Valid {
			if !opts.force {
				return nil, errors.New("D020").
					WithDetail("Accepted types: " + strings.Join(wcfg.Accepts, ", ")).
					WithSuggestion("Pass --force to upload anyway")
			}
			warn("Drop is invalid, uploading anyway")
		}
	}

	body, err := h.Upload(extra).Wait(ctx)
	if err != nil {
		var ue *dragondrop.UploadError
		switch {
		case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, errors.New("D022").
				WithSuggestion("Raise --timeout (currently " + opts.timeout.String() + ")")
		case stderrors.As(err, &ue):
			de := errors.New("D021").Wrap(err)
			if ue.Response != nil {
				de.WithDetail(fmt.Sprintf("Status %d: %s", ue.Response.StatusCode, describe(ue.Response.Body)))
			}
			errorMsg("Upload failed")
			return nil, de
		default:
			return nil, err
		}
	}

	success("Uploaded %d file(s) as widget %s", uploadedCount(wcfg, opts, files), wcfg.ID)
	info("%s", describe(body))
	return body, nil
}

func uploadedCount(wcfg dragondrop.Config, opts pushOptions, files []dragondrop.File) int {
	if opts.manual || wcfg.Multiple {
		return len(files)
	}
	return 1
}

// describe renders a payload on one line.
func describe(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case dragondrop.Drop:
		names := make([]string, len(p.Files))
		for i, f := range p.Files {
			names[i] = f.Name()
		}
		return fmt.Sprintf("%s valid=%t", strings.Join(names, ","), p.Valid)
	case *dragondrop.Response:
		if p == nil {
			return ""
		}
		return fmt.Sprintf("status=%d %s", p.StatusCode, describe(p.Body))
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(data)
	}
}
