package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/scrustls/pkg/config"
	"github.com/walteh/scrustls/pkg/position"
	"github.com/walteh/scrustls/pkg/semtok"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

type Handler struct {
	json       bool
	noColor    bool
	configPath string

	fs  afero.Fs
	out io.Writer
}

func NewTokensCommand() *cobra.Command {
	me := &Handler{
		fs:  afero.NewOsFs(),
		out: os.Stdout,
	}

	cmd := &cobra.Command{
		Use:   "tokens [file|glob]...",
		Short: "print the procedure call tokens of scrust files",
		Long: "Classifies each file the way the language server does and prints one row per token.\n" +
			"Arguments are files, directories or doublestar globs; with none, the config's\n" +
			"file_patterns are matched under the current directory.",
	}

	cmd.Flags().BoolVar(&me.json, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&me.noColor, "no-color", false, "disable colored output")
	cmd.Flags().StringVar(&me.configPath, "config", config.DefaultFileName, "path to the config file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), args)
	}

	return cmd
}

// 📝 one classified token
type TokenRecord struct {
	Name      string `json:"name"`
	Offset    int    `json:"offset"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Length    int    `json:"length"`
	Type      string `json:"type"`
	Modifiers string `json:"modifiers"`
}

// 📄 all tokens of one file, plus the encoded LSP data
type FileResult struct {
	Path   string        `json:"path"`
	Tokens []TokenRecord `json:"tokens"`
	Data   []uint32      `json:"data"`
}

func (me *Handler) Run(ctx context.Context, args []string) error {
	cfg, err := config.Load(me.fs, me.configPath)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	paths, errs := me.resolve(cfg, args)

	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		result, err := me.classify(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		results = append(results, *result)
	}

	if me.json {
		enc := json.NewEncoder(me.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return errors.Errorf("writing JSON: %w", err)
		}
	} else {
		me.printTable(results)
	}

	if errs != nil {
		return errors.Errorf("%d file(s) failed: %w", len(multierr.Errors(errs)), errs)
	}

	return nil
}

// resolve expands the arguments into a sorted, de-duplicated list of files.
func (me *Handler) resolve(cfg *config.Config, args []string) ([]string, error) {
	var errs error
	seen := map[string]struct{}{}
	var paths []string

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	if len(args) == 0 {
		found, err := me.walk(".", cfg.Matches)
		errs = multierr.Append(errs, err)
		for _, p := range found {
			add(p)
		}
	}

	for _, arg := range args {
		info, err := me.fs.Stat(arg)
		switch {
		case err == nil && !info.IsDir():
			add(arg)
		case err == nil && info.IsDir():
			found, err := me.walk(arg, cfg.Matches)
			errs = multierr.Append(errs, err)
			for _, p := range found {
				add(p)
			}
		default:
			if !doublestar.ValidatePattern(filepath.ToSlash(arg)) {
				errs = multierr.Append(errs, errors.Errorf("%s: invalid pattern", arg))
				continue
			}

			base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
			found, err := me.walk(filepath.FromSlash(base), func(rel string) bool {
				ok, _ := doublestar.Match(pattern, rel)
				return ok
			})
			errs = multierr.Append(errs, err)
			if err == nil && len(found) == 0 {
				errs = multierr.Append(errs, errors.Errorf("%s: no matching files", arg))
			}
			for _, p := range found {
				add(p)
			}
		}
	}

	sort.Strings(paths)
	return paths, errs
}

// walk returns the regular files under root whose slash-separated path
// relative to root satisfies match.
func (me *Handler) walk(root string, match func(rel string) bool) ([]string, error) {
	var found []string

	err := afero.Walk(me.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if match(filepath.ToSlash(rel)) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", root, err)
	}

	return found, nil
}

func (me *Handler) classify(ctx context.Context, path string) (*FileResult, error) {
	content, err := afero.ReadFile(me.fs, path)
	if err != nil {
		return nil, errors.Errorf("%s: reading file: %w", path, err)
	}

	tokens, err := semtok.GetTokensForText(ctx, content)
	if err != nil {
		return nil, errors.Errorf("%s: %w", path, err)
	}

	text := string(content)
	m := position.NewMapper(text)

	records := make([]TokenRecord, 0, len(tokens))
	for _, tok := range tokens {
		rng := m.RangeOf(tok.Range)
		records = append(records, TokenRecord{
			Name:      tok.Range.Text,
			Offset:    tok.Range.Offset,
			Line:      rng.Start.Line,
			Character: rng.Start.Character,
			Length:    tok.Range.UTF16Length(),
			Type:      tok.Type.String(),
			Modifiers: tok.Modifier.String(),
		})
	}

	return &FileResult{
		Path:   path,
		Tokens: records,
		Data:   semtok.Encode(tokens, text),
	}, nil
}

// printTable writes one block per file. Lines and columns are 1-based, the
// way compilers and editors print them.
func (me *Handler) printTable(results []FileResult) {
	header := color.New(color.Bold)
	loc := color.New(color.FgCyan)
	name := color.New(color.FgYellow)
	if me.noColor {
		header.DisableColor()
		loc.DisableColor()
		name.DisableColor()
	}

	for _, r := range results {
		header.Fprintf(me.out, "%s\n", r.Path)
		if len(r.Tokens) == 0 {
			fmt.Fprintln(me.out, "  (no tokens)")
			continue
		}
		for _, tok := range r.Tokens {
			loc.Fprintf(me.out, "  %d:%d", tok.Line+1, tok.Character+1)
			fmt.Fprintf(me.out, "\t%d\t%s\t%s\t", tok.Length, tok.Type, tok.Modifiers)
			name.Fprintln(me.out, tok.Name)
		}
	}
}
