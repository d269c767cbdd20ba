package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
)

func newLibraryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage the document library",
	}

	cmd.AddCommand(newAddCmd(e))
	cmd.AddCommand(newListCmd(e))
	cmd.AddCommand(newRemoveCmd(e))
	cmd.AddCommand(newClearCmd(e))
	cmd.AddCommand(newExportCmd(e))
	cmd.AddCommand(newImportCmd(e))
	cmd.AddCommand(newAttachCmd(e))
	cmd.AddCommand(newBookmarkCmd(e))
	cmd.AddCommand(newNoteCmd(e))
	cmd.AddCommand(newNotesPDFCmd(e))

	return cmd
}

func newAddCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Add documents to the library",
		Long:  "Add documents to the library. Supported formats: " + strings.Join(reader.SupportedFormats(), "; "),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			for _, path := range args {
				item, err := addFile(cmd.Context(), lib, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", item.Name, item.Format, item.ID)
			}
			return nil
		},
	}
}

func addFile(ctx context.Context, lib *library.Store, path string) (library.Item, error) {
	name := filepath.Base(path)
	format, err := reader.FormatFromName(name)
	if err != nil {
		return library.Item{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return library.Item{}, fmt.Errorf("read %s: %w", path, err)
	}
	return lib.Add(ctx, name, format, data)
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List library documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			items, err := lib.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "The library is empty.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFORMAT\tPROGRESS\tPOSITION\tHASH")
			for _, it := range items {
				hash := it.ContentHash
				if !it.HasContent {
					hash = "(content missing)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n", it.ID, it.Name, it.Format, it.Progress, it.LastPosition, hash)
			}
			return tw.Flush()
		},
	}
}

func newRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>...",
		Aliases: []string{"rm"},
		Short:   "Remove documents with their positions, bookmarks and notes",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := lib.Remove(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	}
}

func newClearCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the library without --yes")
			}
			lib, err := e.library()
			if err != nil {
				return err
			}
			n, err := lib.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d documents\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the library")
	return cmd
}

func newExportCmd(e *env) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog (metadata, positions, bookmarks and notes)",
		Long:  "Export the catalog as JSON or YAML. Document bytes are never exported; re-add or attach them after importing elsewhere.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			enc := library.Encoding(format)
			if format == "" {
				enc = library.EncodingFromName(output)
			}
			if enc != library.JSON && enc != library.YAML {
				return fmt.Errorf("unsupported format: %s (choose json, yaml)", format)
			}
			cat, err := lib.Export(cmd.Context())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := library.WriteCatalog(&buf, cat, enc); err != nil {
				return err
			}
			if output == "-" || output == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d documents to %s\n", len(cat.Items), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, or - for stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default from the output name)")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog-file>",
		Short: "Merge an exported catalog; existing ids are never overwritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			cat, err := library.ReadCatalog(r, library.EncodingFromName(args[0]))
			if err != nil {
				return err
			}
			res, err := lib.Import(cmd.Context(), cat)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d, skipped %d existing, %d invalid\n", len(res.Added), len(res.Skipped), res.Invalid)
			if len(res.MissingContent) > 0 {
				fmt.Fprintln(out, "These documents need their files re-attached (aeonsight library attach <id> <file>):")
				for _, id := range res.MissingContent {
					fmt.Fprintf(out, "  %s\n", id)
				}
			}
			return nil
		},
	}
}

func newAttachCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Attach document bytes to an imported entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := lib.Attach(cmd.Context(), args[0], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Attached %s to %s\n", filepath.Base(args[1]), args[0])
			return nil
		},
	}
}

// positionFlags lets annotation commands target a position other than
// the item's last one.
type positionFlags struct {
	page     int
	sentence int
	cfi      string
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.page, "page", 0, "PDF page")
	cmd.Flags().IntVar(&p.sentence, "sentence", 0, "Sentence index (text and html)")
	cmd.Flags().StringVar(&p.cfi, "cfi", "", "EPUB fragment identifier")
}

func (p *positionFlags) resolve(item library.Item) reader.Position {
	pos := reader.Position{Page: p.page, Sentence: p.sentence, CFI: p.cfi}
	if pos.IsZero() {
		return item.LastPosition
	}
	return pos
}

func newBookmarkCmd(e *env) *cobra.Command {
	var pf positionFlags
	cmd := &cobra.Command{
		Use:   "bookmark <id> [label]",
		Short: "Bookmark a document at its last position",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			item, err := lib.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pos := pf.resolve(item)
			label := pos.String()
			if len(args) == 2 {
				label = args[1]
			}
			if _, err := lib.AddBookmark(cmd.Context(), item.ID, pos, label); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bookmarked %s at %s\n", item.Name, pos)
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func newNoteCmd(e *env) *cobra.Command {
	var pf positionFlags
	cmd := &cobra.Command{
		Use:   "note <id> <text>...",
		Short: "Attach a note to a document position",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			item, err := lib.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pos := pf.resolve(item)
			if _, err := lib.AddNote(cmd.Context(), item.ID, pos, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Noted %s at %s\n", item.Name, pos)
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func newNotesPDFCmd(e *env) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "notes-pdf <id>",
		Short: "Write a document's bookmarks and notes to a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := e.library()
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0] + "-notes.pdf"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := lib.ExportNotesPDF(cmd.Context(), args[0], f); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <id>-notes.pdf)")
	return cmd
}
