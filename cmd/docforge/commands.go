package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docforge/internal/app"
	"github.com/dshills/docforge/internal/config"
	"github.com/dshills/docforge/internal/dispatcher"
	"github.com/dshills/docforge/internal/operation"
	"github.com/dshills/docforge/internal/selection"
)

// globalFlags are shared by every command that opens the graph.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	output     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "docforge",
		Short:         "docforge - versioned page operations on documents",
		Long:          `docforge applies page operations (rotate, delete, redact, reorder, split, merge) to documents and keeps every result as a version.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a TOML or YAML configuration file")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "Path to the version database (overrides storage.path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "Output format: text, json or yaml")

	root.AddCommand(
		newSelectCmd(g),
		newKindsCmd(g),
		newImportCmd(g),
		newFilesCmd(g),
		newLineageCmd(g),
		newApplyCmd(g),
		newCheckoutCmd(g),
		newPinCmd(g, true),
		newPinCmd(g, false),
		newCompactCmd(g),
	)
	return root
}

// open builds the application from the configuration file and flags.
func (g *globalFlags) open() (*app.Application, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if g.dbPath != "" {
		cfg.Storage.Path = g.dbPath
	}
	if cfg.Storage.Path == "" {
		return nil, fmt.Errorf("no database configured: pass --db or set storage.path")
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	} else {
		cfg.Logging.Level = "warn"
	}
	return app.New(cfg, app.Options{})
}

// print writes v in the selected output format, using text for the text
// format.
func (g *globalFlags) print(w io.Writer, v any, text func(io.Writer)) error {
	switch g.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	}
	return fmt.Errorf("unknown output format %q", g.output)
}

func newSelectCmd(g *globalFlags) *cobra.Command {
	var pages uint
	cmd := &cobra.Command{
		Use:   "select EXPRESSION",
		Short: "Evaluate a page selection expression",
		Long: `Evaluate a page selection expression against a document length.

Examples:
  docforge select "1-3,5" --pages 10
  docforge select "odd and not 1" --pages 8
  docforge select "2n+1" --pages 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := selection.Parse(args[0], pages)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				parts := make([]string, len(result))
				for i, p := range result {
					parts[i] = strconv.FormatUint(uint64(p), 10)
				}
				fmt.Fprintln(w, strings.Join(parts, ","))
			})
		},
	}
	cmd.Flags().UintVarP(&pages, "pages", "n", 0, "Number of pages in the document")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

type kindInfo struct {
	Kind        operation.Kind `json:"kind" yaml:"kind"`
	PageScoped  bool           `json:"pageScoped" yaml:"page_scoped"`
	Inputs      string         `json:"inputs" yaml:"inputs"`
	Description string         `json:"description" yaml:"description"`
}

func newKindsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the available operation kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []kindInfo
			for _, k := range operation.Kinds() {
				s, _ := operation.Lookup(k)
				infos = append(infos, kindInfo{Kind: k, PageScoped: s.PageScoped, Inputs: s.InputRange(), Description: s.Description})
			}
			return g.print(cmd.OutOrStdout(), infos, func(w io.Writer) {
				for _, info := range infos {
					scope := ""
					if info.PageScoped {
						scope = " [pages]"
					}
					fmt.Fprintf(w, "%-13s %s input(s)%s: %s\n", info.Kind, info.Inputs, scope, info.Description)
				}
			})
		},
	}
}

func newImportCmd(g *globalFlags) *cobra.Command {
	var pages uint
	cmd := &cobra.Command{
		Use:   "import NAME",
		Short: "Add a document with the given number of pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.Import(args[0], pages)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), fileRow{ID: f.ID, Name: f.DisplayName, Pages: pages, Versions: 1, Active: true}, func(w io.Writer) {
				fmt.Fprintln(w, f.ID)
			})
		},
	}
	cmd.Flags().UintVarP(&pages, "pages", "n", 1, "Number of pages")
	return cmd
}

type fileRow struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Pages    uint   `json:"pages" yaml:"pages"`
	Versions int    `json:"versions" yaml:"versions"`
	Active   bool   `json:"active" yaml:"active"`
	Pinned   bool   `json:"pinned" yaml:"pinned"`
}

func newFilesCmd(g *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			files := a.Store().Files()
			if all {
				files = a.Store().AllFiles()
			}
			rows := make([]fileRow, 0, len(files))
			for _, f := range files {
				leaf, err := a.Store().Leaf(f.ID)
				if err != nil {
					return err
				}
				rows = append(rows, fileRow{
					ID:       f.ID,
					Name:     f.DisplayName,
					Pages:    leaf.PageCount(),
					Versions: len(f.Versions),
					Active:   f.Active,
					Pinned:   f.Pinned,
				})
			}
			return g.print(cmd.OutOrStdout(), rows, func(w io.Writer) {
				for _, r := range rows {
					flags := ""
					if r.Pinned {
						flags += " pinned"
					}
					if !r.Active {
						flags += " removed"
					}
					fmt.Fprintf(w, "%s  %-24s %4d pages  %3d versions%s\n", r.ID, r.Name, r.Pages, r.Versions, flags)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include removed documents")
	return cmd
}

type versionRow struct {
	ID      string `json:"id" yaml:"id"`
	Parent  string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Seq     int    `json:"seq" yaml:"seq"`
	Pages   uint   `json:"pages" yaml:"pages"`
	Created string `json:"created" yaml:"created"`
	Leaf    bool   `json:"leaf" yaml:"leaf"`
}

func newLineageCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage FILE",
		Short: "Show every version of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			lineage, err := a.Store().Lineage(args[0])
			if err != nil {
				return err
			}
			f, err := a.Store().File(args[0])
			if err != nil {
				return err
			}
			rows := make([]versionRow, len(lineage))
			for i, v := range lineage {
				rows[i] = versionRow{
					ID:      v.ID,
					Parent:  v.ParentID,
					Seq:     v.Seq,
					Pages:   v.PageCount(),
					Created: v.Created.Format("2006-01-02 15:04:05"),
					Leaf:    v.ID == f.LeafID,
				}
			}
			return g.print(cmd.OutOrStdout(), rows, func(w io.Writer) {
				for _, r := range rows {
					marker := " "
					if r.Leaf {
						marker = "*"
					}
					fmt.Fprintf(w, "%s %3d  %s  %4d pages  %s\n", marker, r.Seq, r.ID, r.Pages, r.Created)
				}
			})
		},
	}
}

type opRow struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     string   `json:"kind" yaml:"kind"`
	Status   string   `json:"status" yaml:"status"`
	Versions []string `json:"versions,omitempty" yaml:"versions,omitempty"`
	Created  []string `json:"created,omitempty" yaml:"created,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func newApplyCmd(g *globalFlags) *cobra.Command {
	var (
		sel       string
		rawParams []string
		jsonBag   string
	)
	cmd := &cobra.Command{
		Use:   "apply KIND FILE...",
		Short: "Run an operation on one or more documents",
		Long: `Run an operation on one or more documents.

Parameters are given as key=value pairs; values are read as JSON when
they parse as JSON and as strings otherwise.

Examples:
  docforge apply rotate FILE --select odd --param angle=90
  docforge apply reorder FILE --param reverse=true
  docforge apply split FILE --param every=2
  docforge apply redact FILE --select 1 --params '{"areas":[{"x":0,"y":0,"width":100,"height":20}]}'
  docforge apply merge FILE1 FILE2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := operation.Kind(args[0])
			bag, err := paramBag(jsonBag, rawParams)
			if err != nil {
				return err
			}
			// Without parameters the engine applies the kind's defaults.
			var params operation.Params
			if len(bag) > 0 {
				if params, err = operation.DecodeParams(kind, bag); err != nil {
					return err
				}
			}

			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			op, err := a.Engine().Execute(cmd.Context(), dispatcher.Request{
				Kind:      kind,
				FileIDs:   args[1:],
				Selection: sel,
				Params:    params,
			})
			if err != nil {
				return err
			}

			row := opRow{ID: op.ID, Kind: string(op.Kind), Status: string(op.Status), Versions: op.ResultVersionIDs, Error: op.ErrorDetail}
			for _, eff := range op.Effects {
				if eff.Created {
					row.Created = append(row.Created, eff.FileID)
				}
			}
			if err := g.print(cmd.OutOrStdout(), row, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", row.Status, op.Description())
				for _, id := range row.Created {
					fmt.Fprintf(w, "created %s\n", id)
				}
				if row.Error != "" {
					fmt.Fprintf(w, "error: %s\n", row.Error)
				}
			}); err != nil {
				return err
			}
			if op.Err != nil {
				return op.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sel, "select", "s", "", "Page selection expression")
	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&jsonBag, "params", "", "Parameters as a JSON object")
	return cmd
}

// paramBag merges a JSON object and key=value pairs into one bag. Pairs
// override keys of the JSON object.
func paramBag(jsonBag string, pairs []string) (map[string]any, error) {
	bag := map[string]any{}
	if jsonBag != "" {
		if err := json.Unmarshal([]byte(jsonBag), &bag); err != nil {
			return nil, fmt.Errorf("--params: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--param %q: want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		bag[key] = v
	}
	return bag, nil
}

func newCheckoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout FILE VERSION",
		Short: "Make an earlier or later version the leaf of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store().SetLeaf(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now at %s\n", args[0], args[1])
			return nil
		},
	}
}

func newPinCmd(g *globalFlags, pin bool) *cobra.Command {
	use, short := "pin FILE", "Protect a document from compaction"
	if !pin {
		use, short = "unpin FILE", "Allow a document to be compacted"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if pin {
				return a.Store().Pin(args[0])
			}
			return a.Store().Unpin(args[0])
		},
	}
}

func newCompactCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "List documents whose history exceeds the compaction depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ids := a.CompactionCandidates()
			return g.print(cmd.OutOrStdout(), ids, func(w io.Writer) {
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		},
	}
}
