package serve_lsp

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/scrustls/pkg/config"
	"github.com/walteh/scrustls/pkg/logging"
	"github.com/walteh/scrustls/pkg/lsp"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	debug      bool
	configPath string
	logFile    string
	version    string

	fs     afero.Fs
	stdin  io.Reader
	stdout io.WriteCloser
	stderr io.Writer
}

func NewServeLSPCommand(version string) *cobra.Command {
	me := &Handler{
		version: version,
		fs:      afero.NewOsFs(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdin/stdout",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configPath, "config", config.DefaultFileName, "path to the config file")
	cmd.Flags().StringVar(&me.logFile, "log-file", "", "append logs to this file instead of stderr")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context) error {
	cfg, err := config.Load(me.fs, me.configPath)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	level := cfg.Level()
	if me.debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	// stdout carries the protocol, so logs never go there
	out := me.stderr
	if me.logFile != "" {
		f, err := me.fs.OpenFile(me.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx = logging.New(logging.Options{Writer: out, Level: level}).WithContext(ctx)

	server := lsp.NewServer(ctx, cfg, me.version)

	instance := server.BuildServerInstance(ctx, nil)

	if err := instance.StartAndWait(me.stdin, me.stdout); err != nil {
		return errors.Errorf("error running language server: %w", err)
	}

	return nil
}
