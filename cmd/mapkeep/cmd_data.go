package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mapkeep/internal/overrides"
	"mapkeep/internal/transfer"
)

var (
	assumeYes   bool
	exportOut   string
	shareBase   string
	shareImport string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the overrides of one map to a JSON file",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import [file|-]",
	Short: "Import an exported JSON file",
	Long: `Imports an export envelope for the selected game and map. Version 2 envelopes
replace the stored record; legacy ("v5") envelopes are run through the legacy
migration. Nothing is changed when the import is rejected. Use - to read the
file from stdin; that requires --yes, since stdin then cannot answer prompts.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored overrides of one map",
	RunE:  runClear,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored overrides of one map",
	RunE:  runShow,
}

var shareCmd = &cobra.Command{
	Use:   "share [note-id]",
	Short: "Print a share link for a note, or import one with --import",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShare,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: generated name in the current directory, - for stdout)")
	importCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")
	clearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	shareCmd.Flags().StringVar(&shareBase, "base", "", "Page url the link points at (default: proxy upstream)")
	shareCmd.Flags().StringVar(&shareImport, "import", "", "Share link to import into the current map")
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func runExport(cmd *cobra.Command, args []string) error {
	id, _, err := identityFromFlags()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	exported, err := rt.helper.Export(ctx, id)
	if err != nil {
		return err
	}

	switch exportOut {
	case "-":
		_, err = cmd.OutOrStdout().Write(append(exported.JSON, '\n'))
		return err
	case "":
		exportOut = exported.Filename
	}
	if err := os.MkdirAll(filepath.Dir(exportOut), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, exported.JSON, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, exportOut)
	return nil
}

// errStdinNeedsYes rejects interactive imports whose payload consumes stdin,
// which leaves nothing to read the answers from.
var errStdinNeedsYes = errors.New("import from stdin needs --yes: confirmations are read from stdin too")

// promptConfirmer asks on out and reads y/N answers from in.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) ask(question string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", question)
	line, _ := p.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *promptConfirmer) ConfirmOverwrite() bool {
	return p.ask("This map already has data. Overwrite it?")
}

func (p *promptConfirmer) ConfirmUserMismatch(got, want int) bool {
	return p.ask(fmt.Sprintf("The file belongs to user %d, not %d. Import anyway?", got, want))
}

func runImport(cmd *cobra.Command, args []string) error {
	id, _, err := identityFromFlags()
	if err != nil {
		return err
	}

	var payload []byte
	if args[0] == "-" {
		if !assumeYes {
			return errStdinNeedsYes
		}
		payload, err = io.ReadAll(cmd.InOrStdin())
	} else {
		payload, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read import: %w", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	var confirm transfer.Confirmer = transfer.Assume(true)
	if !assumeYes {
		confirm = newPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	res := rt.helper.Import(ctx, id, payload, confirm)
	if res.Status != transfer.Ok {
		return fmt.Errorf("import %s: %s", res.Status, res.Reason)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported into %s\n", id)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	id, _, err := identityFromFlags()
	if err != nil {
		return err
	}
	if !assumeYes && !newPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout()).ask(fmt.Sprintf("Remove all overrides of %s?", id)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := rt.store.Clear(ctx, rec); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", id)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	id, _, err := identityFromFlags()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.store.Load(ctx, id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec.Object(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", id, out)
	return nil
}

func runShare(cmd *cobra.Command, args []string) error {
	id, _, err := identityFromFlags()
	if err != nil {
		return err
	}
	if (len(args) == 1) == (shareImport != "") {
		return fmt.Errorf("give either a note id or --import")
	}

	ctx, cancel := commandContext()
	defer cancel()

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec, err := rt.store.Load(ctx, id)
	if err != nil {
		return err
	}

	if shareImport != "" {
		u, err := url.Parse(shareImport)
		if err != nil {
			return fmt.Errorf("invalid share link: %w", err)
		}
		inserted, err := overrides.ImportSharedNote(rec, u)
		if err != nil {
			return err
		}
		if !inserted {
			fmt.Fprintln(cmd.OutOrStdout(), "Note not imported (already present or for another map)")
			return nil
		}
		if err := rt.store.Save(ctx, rec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported shared note into %s\n", id)
		return nil
	}

	note, ok := rec.FindNote(args[0])
	if !ok {
		return fmt.Errorf("note %q not found in %s", args[0], id)
	}
	base := shareBase
	if base == "" {
		base = cfg.Proxy.Upstream
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	link, err := overrides.ShareURL(note, u)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), link)
	return nil
}
