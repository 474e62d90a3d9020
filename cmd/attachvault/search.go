package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/attachvault/internal/model"
	"github.com/dharsanguruparan/attachvault/internal/search"
)

type queryFlags struct {
	category     string
	documentType string
	tags         []string
	owner        string
	from         string
	to           string
	page         int
	limit        int
	sortBy       string
	sortOrder    string
	all          bool
}

func (f *queryFlags) register(cmd *cobra.Command, filters bool) {
	fl := cmd.Flags()
	if filters {
		fl.StringVar(&f.category, "category", "", "Only documents in this category")
		fl.StringVar(&f.documentType, "type", "", "Only documents of this type")
		fl.StringSliceVar(&f.tags, "tag", nil, "Only documents carrying every tag")
		fl.StringVar(&f.owner, "owner", "", "Only documents of this owner")
		fl.StringVar(&f.from, "from", "", "Uploaded on or after (YYYY-MM-DD)")
		fl.StringVar(&f.to, "to", "", "Uploaded on or before (YYYY-MM-DD)")
	}
	fl.IntVar(&f.page, "page", 1, "Page to fetch")
	fl.IntVar(&f.limit, "limit", model.DefaultPageSize, "Results per page")
	fl.StringVar(&f.sortBy, "sort", "", "relevance, date, size or filename")
	fl.StringVar(&f.sortOrder, "order", "", "asc or desc")
	fl.BoolVar(&f.all, "all", false, "Keep loading pages until every result is fetched")
}

func (f *queryFlags) query(text string) (model.SearchQuery, error) {
	q := model.SearchQuery{
		Text:         text,
		Category:     f.category,
		DocumentType: f.documentType,
		Tags:         f.tags,
		OwnerScope:   f.owner,
		Page:         f.page,
		PageSize:     f.limit,
		SortBy:       model.SortField(f.sortBy),
		SortOrder:    model.SortOrder(f.sortOrder),
	}
	var err error
	if q.DateFrom, err = parseDay(f.from); err != nil {
		return q, fmt.Errorf("--from: %w", err)
	}
	if q.DateTo, err = parseDay(f.to); err != nil {
		return q, fmt.Errorf("--to: %w", err)
	}
	return q, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(search.DateLayout, s)
}

func newSearchCmd(a *app) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Search documents across owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query(strings.Join(args, " "))
			if err != nil {
				return err
			}
			client, err := a.search()
			if err != nil {
				return err
			}
			if !flags.all {
				page, err := client.Search(cmd.Context(), q)
				if err != nil {
					return err
				}
				return a.printJSON(page)
			}
			acc := search.NewAccumulator(client, q)
			for acc.HasMore() {
				page, err := acc.LoadMore(cmd.Context())
				if err != nil {
					return err
				}
				if len(page.Documents) == 0 {
					break
				}
			}
			return a.printJSON(map[string]any{
				"documents": acc.Documents(),
				"total":     acc.Total(),
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "list OWNER",
		Short: "List an owner's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.query("")
			if err != nil {
				return err
			}
			client, err := a.search()
			if err != nil {
				return err
			}
			page, err := client.ListOwner(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			return a.printJSON(page)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest PREFIX",
		Short: "Complete a search term from titles and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.search()
			if err != nil {
				return err
			}
			suggestions, err := client.Suggest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, s := range suggestions {
				fmt.Fprintln(a.out, s)
			}
			return nil
		},
	}
}

func newSimilarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "similar DOCUMENT_ID",
		Short: "Find documents related to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.search()
			if err != nil {
				return err
			}
			docs, err := client.FindSimilar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(docs)
		},
	}
}
