package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/config"
	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/sitesearch"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

// --- discover ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show personalized recommendations",
	Long: `Show personalized recommendations.

Without --stream the cached list is shown; an empty cache schedules a
background refresh. With --stream the list is computed now.

Examples:
  cinesense discover --limit 10
  cinesense discover --stream
  cinesense --user bob discover`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		limit, _ := cmd.Flags().GetInt("limit")
		stream, _ := cmd.Flags().GetBool("stream")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if stream {
			return streamDiscover(cmd.Context(), client)
		}

		page, err := fetchDiscover(cmd.Context(), client, start, limit)
		if err != nil {
			return err
		}
		if page.Total == 0 {
			printWarning("No recommendations yet; a refresh has been scheduled")
			return nil
		}
		printTitles(os.Stdout, start, discoverRows(page.List))
		printStatus("Showing", "%d of %d", len(page.List), page.Total)
		return nil
	},
}

func fetchDiscover(ctx context.Context, client *apiClient, start, limit int) (discover.Page, error) {
	path := fmt.Sprintf("/api/discover?start=%d", start)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return discover.Page{}, err
	}
	var page discover.Page
	if err := decodeJSON(resp, &page); err != nil {
		return discover.Page{}, err
	}
	return page, nil
}

// streamDiscover prints the quick list as it arrives and then the final
// ranked one.
func streamDiscover(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/api/discover/stream")
	if err != nil {
		return err
	}

	batch := 0
	return decodeNDJSON(resp, func(line json.RawMessage) error {
		var list []discover.Result
		if err := json.Unmarshal(line, &list); err != nil {
			return fmt.Errorf("decoding batch: %w", err)
		}
		batch++
		if batch == 1 {
			printStep("Quick picks (%d)", len(list))
		} else {
			printStep("Ranked for you (%d)", len(list))
		}
		printTitles(os.Stdout, 0, discoverRows(list))
		return nil
	})
}

func discoverRows(list []discover.Result) []titleLine {
	rows := make([]titleLine, len(list))
	for i, r := range list {
		rows[i] = titleLine{Title: r.Title, Year: r.Year}
	}
	return rows
}

func init() {
	discoverCmd.Flags().Int("start", 0, "offset into the list")
	discoverCmd.Flags().Int("limit", 20, "number of results (0 uses the server default)")
	discoverCmd.Flags().Bool("stream", false, "compute the list now and stream progress")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Schedule a background recomputation of recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/discover/refresh", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result["status"] == "already_queued" {
			printWarning("A refresh is already queued")
			return nil
		}
		printSuccess("Queued refresh %s", result["id"])
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search Douban and the configured video sites",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/search?q="+url.QueryEscape(query))
		if err != nil {
			return err
		}

		var result struct {
			Douban  []catalog.Item      `json:"douban"`
			Results []sitesearch.Result `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		switch {
		case len(result.Douban) > 0:
			rows := make([]titleLine, len(result.Douban))
			for i, it := range result.Douban {
				rows[i] = titleLine{Title: it.Title, Year: it.Year, Source: "douban"}
			}
			printTitles(os.Stdout, 0, rows)
		case len(result.Results) > 0:
			printTitles(os.Stdout, 0, siteRows(result.Results))
		default:
			printWarning("No results for %q", query)
		}
		return nil
	},
}

func siteRows(results []sitesearch.Result) []titleLine {
	rows := make([]titleLine, len(results))
	for i, r := range results {
		rows[i] = titleLine{Title: r.Title, Year: r.Year, Source: r.SourceName}
	}
	return rows
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <request>",
	Short: "Ask the assistant for something to watch",
	Long: `Ask the assistant for something to watch.

Examples:
  cinesense ask "something like Dark but lighter"
  cinesense ask 三体`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/ai/assistant", map[string]string{
			"query": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		n := 0
		err = decodeNDJSON(resp, func(line json.RawMessage) error {
			var r sitesearch.Result
			if err := json.Unmarshal(line, &r); err != nil {
				return fmt.Errorf("decoding result: %w", err)
			}
			printTitles(os.Stdout, n, siteRows([]sitesearch.Result{r}))
			n++
			return nil
		})
		if err != nil {
			return err
		}
		if n == 0 {
			printWarning("Nothing found")
		}
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect the inferred taste profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the taste profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/profile")
		if err != nil {
			return err
		}
		var p tasteprofile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(os.Stdout, p)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys that can be set",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configKeysCmd)
}
