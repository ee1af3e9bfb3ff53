package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/query"
)

// listFlags are shared by every list command. They are turned into the
// same query parameters the server understands and applied locally.
type listFlags struct {
	search  string
	filters []string
	mins    []string
	maxs    []string
	since   []string
	tags    []string
	sort    string
	desc    bool
}

func (f *listFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.search, "search", "s", "", "free-text search")
	fl.StringArrayVarP(&f.filters, "filter", "f", nil, "equality filter field=value (repeatable)")
	fl.StringArrayVar(&f.mins, "min", nil, "inclusive lower bound field=number (repeatable)")
	fl.StringArrayVar(&f.maxs, "max", nil, "inclusive upper bound field=number (repeatable)")
	fl.StringArrayVar(&f.since, "since", nil, "date lower bound field=YYYY-MM-DD (repeatable)")
	fl.StringSliceVar(&f.tags, "tag", nil, "match any of these tags")
	fl.StringVar(&f.sort, "sort", "", "sort key")
	fl.BoolVar(&f.desc, "desc", false, "sort descending")
}

// values converts the flags into list-endpoint query parameters.
func (f *listFlags) values() (url.Values, error) {
	v := url.Values{}
	if f.search != "" {
		v.Set("search", f.search)
	}
	pairs := []struct {
		flag   string
		items  []string
		suffix string
	}{
		{"filter", f.filters, ""},
		{"min", f.mins, "_min"},
		{"max", f.maxs, "_max"},
		{"since", f.since, "_since"},
	}
	for _, p := range pairs {
		for _, item := range p.items {
			key, val, ok := strings.Cut(item, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("--%s %q: expected field=value", p.flag, item)
			}
			v.Set(key+p.suffix, strings.TrimSpace(val))
		}
	}
	if len(f.tags) > 0 {
		v.Set("tags", strings.Join(f.tags, ","))
	}
	if f.sort != "" {
		v.Set("sort", f.sort)
		if f.desc {
			v.Set("dir", string(query.Desc))
		}
	}
	return v, nil
}

// runList fetches the full collection and narrows it with the query
// pipeline before rendering.
func runList[T any](a *app, cmd *cobra.Command, f *listFlags, table query.Table[T], fetch func(context.Context) ([]T, error), cols []column[T]) error {
	v, err := f.values()
	if err != nil {
		return err
	}
	format, err := resolveFormat(a.format, a.out)
	if err != nil {
		return err
	}
	records, err := fetch(cmd.Context())
	if err != nil {
		return err
	}
	records = query.Apply(records, table, query.ParseFilter(v, table), query.ParseSort(v))
	return render(a.out, format, records, cols)
}

var leadColumns = []column[models.Lead]{
	{"ID", func(l models.Lead) string { return l.ID }},
	{"NAME", func(l models.Lead) string { return l.Name }},
	{"STATUS", func(l models.Lead) string { return label(l.Status) }},
	{"SCORE", func(l models.Lead) string { return strconv.Itoa(l.Score) }},
	{"SOURCE", func(l models.Lead) string { return orDash(l.Source) }},
	{"BUDGET", func(l models.Lead) string { return money(l.BudgetMax) }},
	{"TAGS", func(l models.Lead) string { return orDash(strings.Join(l.Tags, ",")) }},
	{"CREATED", func(l models.Lead) string { return date(l.CreatedAt) }},
}

var propertyColumns = []column[models.Property]{
	{"ID", func(p models.Property) string { return p.ID }},
	{"ADDRESS", func(p models.Property) string { return p.Address }},
	{"CITY", func(p models.Property) string { return orDash(p.City) }},
	{"PRICE", func(p models.Property) string { return money(p.Price) }},
	{"BEDS", func(p models.Property) string { return strconv.Itoa(p.Bedrooms) }},
	{"STATUS", func(p models.Property) string { return label(p.Status) }},
	{"LISTED", func(p models.Property) string { return date(p.ListedAt) }},
}

var offerColumns = []column[models.Offer]{
	{"ID", func(o models.Offer) string { return o.ID }},
	{"PROPERTY", func(o models.Offer) string { return orDash(o.PropertyAddress) }},
	{"BUYER", func(o models.Offer) string { return o.BuyerName }},
	{"AMOUNT", func(o models.Offer) string { return money(o.Amount) }},
	{"STATUS", func(o models.Offer) string { return label(o.Status) }},
	{"SUBMITTED", func(o models.Offer) string { return date(o.SubmittedAt) }},
	{"EXPIRES", func(o models.Offer) string { return datePtr(o.ExpiresAt) }},
}

var transactionColumns = []column[models.Transaction]{
	{"ID", func(t models.Transaction) string { return t.ID }},
	{"PROPERTY", func(t models.Transaction) string { return orDash(t.PropertyAddress) }},
	{"BUYER", func(t models.Transaction) string { return orDash(t.BuyerName) }},
	{"PRICE", func(t models.Transaction) string { return money(t.Price) }},
	{"STAGE", func(t models.Transaction) string { return label(t.Stage) }},
	{"STATUS", func(t models.Transaction) string { return label(t.Status) }},
	{"CLOSING", func(t models.Transaction) string { return datePtr(t.ClosingDate) }},
}

func (a *app) leadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Work with leads",
	}

	var f listFlags
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List leads",
		Example: `  propdeskctl leads list --filter status=hot --sort score --desc
  propdeskctl leads list --min score=70 --since created_at=2025-01-01 --tag investor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(a, cmd, &f, query.LeadTable, func(ctx context.Context) ([]models.Lead, error) {
				return a.client.ListLeads(ctx, nil)
			}, leadColumns)
		},
	}
	f.register(list)

	qualify := &cobra.Command{
		Use:   "qualify <lead-id>",
		Short: "Score a lead with the AI qualifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.QualifyLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			q := res.Qualification
			fmt.Fprintf(a.out, "%s: score %d (%s)\n", res.Lead.Name, q.Score, q.Status)
			if len(q.Tags) > 0 {
				fmt.Fprintf(a.out, "Tags:        %s\n", strings.Join(q.Tags, ", "))
			}
			if q.Reasoning != "" {
				fmt.Fprintf(a.out, "Reasoning:   %s\n", q.Reasoning)
			}
			if q.NextAction != "" {
				fmt.Fprintf(a.out, "Next action: %s\n", q.NextAction)
			}
			return nil
		},
	}

	cmd.AddCommand(list, qualify)
	return cmd
}

func (a *app) propertiesCommand() *cobra.Command {
	return listParent(a, "properties", "listings", query.PropertyTable, func(ctx context.Context) ([]models.Property, error) {
		return a.client.ListProperties(ctx, nil)
	}, propertyColumns)
}

func (a *app) offersCommand() *cobra.Command {
	return listParent(a, "offers", "offers", query.OfferTable, func(ctx context.Context) ([]models.Offer, error) {
		return a.client.ListOffers(ctx, nil)
	}, offerColumns)
}

func (a *app) transactionsCommand() *cobra.Command {
	return listParent(a, "transactions", "transactions", query.TransactionTable, func(ctx context.Context) ([]models.Transaction, error) {
		return a.client.ListTransactions(ctx, nil)
	}, transactionColumns)
}

func listParent[T any](a *app, name, noun string, table query.Table[T], fetch func(context.Context) ([]T, error), cols []column[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: "Work with " + noun,
	}
	var f listFlags
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + noun,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(a, cmd, &f, table, fetch, cols)
		},
	}
	f.register(list)
	cmd.AddCommand(list)
	return cmd
}
