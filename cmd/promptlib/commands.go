package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/pkg/models"
)

// withApp parses fs, opens the app and runs fn.
func withApp(fs *flag.FlagSet, debug *bool, args []string, fn func(context.Context, *app) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*debug)

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return lo.Map(strings.Split(s, ","), func(v string, _ int) string { return strings.TrimSpace(v) })
}

func runList(args []string) error {
	fs, debug := newFlagSet("list")
	category := fs.String("category", "", "Comma separated categories")
	tag := fs.String("tag", "", "Comma separated tags")
	model := fs.String("model", "", "Comma separated AI models")
	favorites := fs.Bool("favorites", false, "Only favorites")
	query := fs.String("q", "", "Fuzzy search query")
	sortBy := fs.String("sort", "", "dateAdded, alphabetical, lastUsed, favorites or mostUsed")

	return withApp(fs, debug, args, func(_ context.Context, a *app) error {
		filters := models.DefaultFilters()
		filters.Categories = lo.Ternary(*category == "", filters.Categories, splitList(*category))
		filters.Tags = lo.Ternary(*tag == "", filters.Tags, models.NormalizeTags(splitList(*tag)))
		filters.AIModels = lo.Ternary(*model == "", filters.AIModels, splitList(*model))
		filters.FavoritesOnly = *favorites
		filters.SearchQuery = *query

		order := a.lib.Settings().SortBy
		if *sortBy != "" {
			order = models.SortOption(*sortBy)
			if !order.Valid() {
				return fmt.Errorf("unknown sort %q", *sortBy)
			}
		}

		printPrompts(os.Stdout, a.lib.View(filters, order))
		return nil
	})
}

func printPrompts(out io.Writer, prompts []*models.Prompt) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tMODEL\tTAGS\tUSED\tFAV")
	for _, p := range prompts {
		fav := ""
		if p.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.ID, p.Title, p.Category, p.AIModel, strings.Join(p.Tags, ","), p.UsageCount, fav)
	}
	_ = tw.Flush()
}

func runAdd(args []string) error {
	fs, debug := newFlagSet("add")
	title := fs.String("title", "", "Prompt title")
	content := fs.String("content", "", "Prompt content; - reads stdin")
	category := fs.String("category", "", "Category name")
	tags := fs.String("tags", "", "Comma separated tags")
	model := fs.String("model", "", "AI model")
	notes := fs.String("notes", "", "Notes")
	url := fs.String("url", "", "Source URL")
	favorite := fs.Bool("favorite", false, "Mark as favorite")

	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		body := *content
		if body == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			body = string(data)
		}

		p, err := a.lib.CreatePrompt(ctx, library.PromptInput{
			Title:      *title,
			Content:    body,
			Category:   *category,
			Tags:       splitList(*tags),
			AIModel:    *model,
			Notes:      *notes,
			SourceURL:  *url,
			IsFavorite: *favorite,
		})
		if err != nil {
			var verr *library.ValidationError
			if errors.As(err, &verr) {
				return fmt.Errorf("missing or invalid: %s", strings.Join(verr.FieldNames(), ", "))
			}
			return err
		}
		fmt.Println(p.ID)
		return nil
	})
}

func runUse(args []string) error {
	fs, debug := newFlagSet("use")
	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		if fs.NArg() != 1 {
			return errors.New("usage: promptlib use <id>")
		}
		p, err := a.lib.IncrementUsage(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Println(p.Content)
		return nil
	})
}

func runDelete(args []string) error {
	fs, debug := newFlagSet("delete")
	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		if fs.NArg() == 0 {
			return errors.New("usage: promptlib delete <id>...")
		}
		removed := a.lib.BulkDeletePrompts(ctx, fs.Args())
		fmt.Printf("deleted %d of %d\n", len(removed), fs.NArg())
		return nil
	})
}

func runExport(args []string) error {
	fs, debug := newFlagSet("export")
	out := fs.String("o", "", "Output file (default stdout)")
	return withApp(fs, debug, args, func(_ context.Context, a *app) error {
		data, err := a.lib.ExportSnapshot()
		if err != nil {
			return err
		}
		return writeOutput(*out, data)
	})
}

func runImport(args []string) error {
	fs, debug := newFlagSet("import")
	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		if fs.NArg() != 1 {
			return errors.New("usage: promptlib import <file>")
		}
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		if err := a.lib.ImportSnapshot(ctx, data); err != nil {
			return err
		}
		fmt.Printf("imported, library has %d prompts\n", len(a.lib.Prompts()))
		return nil
	})
}

func runCSV(args []string) error {
	fs, debug := newFlagSet("csv")
	out := fs.String("o", "", "Output file (default stdout)")
	return withApp(fs, debug, args, func(_ context.Context, a *app) error {
		return writeOutput(*out, []byte(a.lib.ExportCSV(nil)+"\n"))
	})
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func runTemplates(args []string) error {
	fs, debug := newFlagSet("templates")
	category := fs.String("category", "", "Only this template category")
	add := fs.String("add", "", "Create a prompt from the template with this title")
	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		if *add != "" {
			tpl, ok := a.catalog.Get(*add)
			if !ok {
				return fmt.Errorf("template %q not found", *add)
			}
			p, err := a.lib.CreateFromTemplate(ctx, tpl)
			if err != nil {
				return err
			}
			fmt.Println(p.ID)
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TITLE\tCATEGORY\tMODEL\tTAGS")
		for _, t := range a.catalog.ByCategory(*category) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Title, t.Category, t.AIModel, strings.Join(t.Tags, ","))
		}
		return tw.Flush()
	})
}

func runOutbox(args []string) error {
	fs, debug := newFlagSet("outbox")
	limit := fs.Int("dead", 20, "Number of dead operations to show")
	return withApp(fs, debug, args, func(ctx context.Context, a *app) error {
		pending, err := a.outbox.Pending(ctx)
		if err != nil {
			return err
		}
		dead, err := a.outbox.Dead(ctx, *limit)
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\ndead: %d\n", pending, len(dead))
		for _, op := range dead {
			fmt.Printf("  #%d %s %s attempts=%d error=%s\n", op.ID, op.Kind, op.PromptID, op.Attempts, op.LastError.String)
		}
		return nil
	})
}
