package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"cloudxfer/internal/config"
	"cloudxfer/internal/hostaddr"
	"cloudxfer/internal/session"
	"cloudxfer/internal/transfer"
	"cloudxfer/internal/transport"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	errorMark = color.New(color.FgRed, color.OpBold).Render("Error:")
	okMark    = color.New(color.FgGreen).Render("✓")
)

// cli carries state shared by the subcommands once the root pre-run has
// loaded it.
type cli struct {
	out        io.Writer
	errOut     io.Writer
	configPath string
	settings   config.Settings
	store      *config.Store
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "cloudxfer",
		Short:         "Cloud transfer client",
		Long:          "Exchange text and files with a cloud transfer server using a 6-digit session code.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.report(runTUI(c.settings, c.store))
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	root.AddCommand(c.hostCmd(), c.uploadCmd(), c.listCmd(), c.downloadCmd())
	return root
}

func (c *cli) setup() error {
	s, err := config.LoadSettings()
	if err != nil {
		return c.report(err)
	}
	if c.configPath != "" {
		s.ConfigPath = c.configPath
	}
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return c.report(err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(c.errOut)

	c.settings = s
	c.store = config.NewStore(s.ConfigPath)
	return nil
}

// report prints err for the user and passes it through.
func (c *cli) report(err error) error {
	if err != nil {
		fmt.Fprintln(c.errOut, errorMark, err)
	}
	return err
}

// client builds a transport client for the stored server.
func (c *cli) client() (*transport.Client, config.Values, error) {
	values, err := c.store.Load()
	if err != nil {
		return nil, values, err
	}
	if values.Host == "" {
		return nil, values, fmt.Errorf("%w: run `cloudxfer host ADDRESS` first", transport.ErrNotConfigured)
	}
	cl, err := transport.New(values.Host, transport.WithTimeout(c.settings.Timeout))
	return cl, values, err
}

// unlock resolves the session code once, falling back to the saved code when
// none was given on the command line.
func (c *cli) unlock(ctx context.Context, code string) (*transport.Client, string, error) {
	cl, values, err := c.client()
	if err != nil {
		return nil, "", err
	}
	if code == "" {
		code = values.Code
	}
	if err := session.Verify(ctx, cl, code); err != nil {
		return nil, "", fmt.Errorf("session code %q: %w", code, err)
	}
	return cl, code, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func (c *cli) hostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host [ADDRESS]",
		Short: "Show or set the server address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				values, err := c.store.Load()
				if err != nil {
					return c.report(err)
				}
				if values.Host == "" {
					fmt.Fprintln(c.out, "(not configured)")
					return nil
				}
				fmt.Fprintln(c.out, values.Host)
				return nil
			}
			ok, host := hostaddr.Validate(args[0])
			if !ok {
				return c.report(fmt.Errorf("invalid server address %q", args[0]))
			}
			if err := c.store.SaveHost(host); err != nil {
				return c.report(err)
			}
			fmt.Fprintf(c.out, "%s Server set to %s\n", okMark, host)
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	var code, text string
	cmd := &cobra.Command{
		Use:   "upload [files]...",
		Short: "Upload text or files under a session code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 0 {
				return c.report(errors.New("nothing to upload: pass files or --text"))
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cl, code, err := c.unlock(ctx, code)
			if err != nil {
				return c.report(err)
			}
			up := transfer.NewUploader(cl, transfer.WithMaxAttempts(c.settings.MaxUploadAttempts))

			sources := lo.Map(args, func(p string, _ int) transfer.Source { return transfer.FileSource(p) })
			if text != "" {
				sources = append([]transfer.Source{transfer.TextSource(text)}, sources...)
			}

			var errs []error
			for _, src := range sources {
				label := src.Path
				if label == "" {
					label = "text"
				}
				out, err := up.Upload(ctx, code, src)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", label, err))
					continue
				}
				fmt.Fprintf(c.out, "%s %s -> %s (%d bytes)\n", okMark, label, out.Name, out.Size)
			}
			return c.report(errors.Join(errs...))
		},
	}
	cmd.Flags().StringVarP(&code, "code", "c", "", "session code (default: saved code)")
	cmd.Flags().StringVarP(&text, "text", "t", "", "upload this text as a generated .txt file")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files available under a session code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cl, code, err := c.unlock(ctx, code)
			if err != nil {
				return c.report(err)
			}
			files, err := transfer.NewDownloader(cl).List(ctx, code)
			if err != nil {
				return c.report(err)
			}
			renderFiles(c.out, files)
			return nil
		},
	}
	cmd.Flags().StringVarP(&code, "code", "c", "", "session code (default: saved code)")
	return cmd
}

func renderFiles(w io.Writer, files []transfer.RemoteFile) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "NAME", "TEXT"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, f := range files {
		text := ""
		if transfer.IsTextFile(f.FileName) {
			text = "yes"
		}
		table.Append([]string{f.ID, f.FileName, text})
	}
	table.Render()
}

func (c *cli) downloadCmd() *cobra.Command {
	var code, dir string
	cmd := &cobra.Command{
		Use:   "download ID...",
		Short: "Download files by id; several ids arrive as one zip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cl, code, err := c.unlock(ctx, code)
			if err != nil {
				return c.report(err)
			}
			d := transfer.NewDownloader(cl)
			files, err := d.List(ctx, code)
			if err != nil {
				return c.report(err)
			}
			byID := lo.KeyBy(files, func(f transfer.RemoteFile) string { return f.ID })

			var missing []string
			selected := lo.FilterMap(lo.Uniq(args), func(id string, _ int) (transfer.RemoteFile, bool) {
				f, ok := byID[id]
				if !ok {
					missing = append(missing, id)
				}
				return f, ok
			})
			if len(missing) > 0 {
				return c.report(fmt.Errorf("unknown file id(s): %v", missing))
			}

			if dir == "" {
				dir = c.settings.DownloadDir
			}
			name := d.DisplayName(selected)
			dest, err := transfer.UniquePath(dir, name)
			if err != nil {
				return c.report(err)
			}
			n, err := d.Download(ctx, transfer.IDs(selected), dest)
			if err != nil {
				return c.report(err)
			}
			fmt.Fprintf(c.out, "%s Saved %s (%d bytes)\n", okMark, dest, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&code, "code", "c", "", "session code (default: saved code)")
	cmd.Flags().StringVarP(&dir, "output", "o", "", "destination directory (default: CLOUDXFER_DOWNLOAD_DIR or the working directory)")
	return cmd
}
