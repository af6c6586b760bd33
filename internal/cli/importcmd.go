package cli

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/changewatch/internal/config"
	"github.com/ppiankov/changewatch/internal/feeder"
)

var (
	importDryRun bool
	importFeeder string
)

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import RSS feeds from an OPML file",
	Args:  cobra.ExactArgs(1),
	RunE:  importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be added without modifying config")
	importCmd.Flags().StringVar(&importFeeder, "feeder", feeder.RSS, "feeder for imported feeds: rss or rsssummary")
	rootCmd.AddCommand(importCmd)
}

type opml struct {
	Body opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	XMLURL   string        `xml:"xmlUrl,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// importedFeed is one feed found in an OPML file.
type importedFeed struct {
	Name string
	URL  string
}

func importAction(_ *cobra.Command, args []string) error {
	if importFeeder != feeder.RSS && importFeeder != feeder.RSSSummary {
		return fmt.Errorf("--feeder must be %s or %s", feeder.RSS, feeder.RSSSummary)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read OPML: %w", err)
	}

	var doc opml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse OPML: %w", err)
	}

	found := extractFeeds(doc.Body.Outlines)
	if len(found) == 0 {
		fmt.Println("No feed URLs found in OPML file.")
		return nil
	}

	// Load existing config to find duplicates
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	existingURLs := make(map[string]bool)
	names := make(map[string]bool)
	for _, f := range cfg.Feeds {
		existingURLs[f.URL] = true
		names[f.Name] = true
	}

	var newFeeds []importedFeed
	skipped := 0
	for _, f := range found {
		if existingURLs[f.URL] {
			skipped++
			continue
		}
		existingURLs[f.URL] = true
		f.Name = uniqueName(f.Name, names)
		names[f.Name] = true
		newFeeds = append(newFeeds, f)
	}

	if len(newFeeds) == 0 {
		fmt.Printf("All %d feeds already present, nothing to add.\n", skipped)
		return nil
	}

	if importDryRun {
		fmt.Printf("Would add %d feeds (skipping %d duplicates):\n", len(newFeeds), skipped)
		for _, f := range newFeeds {
			fmt.Printf("  + %s: %s\n", f.Name, f.URL)
		}
		return nil
	}

	// Merge into config.yaml using yaml.Node to preserve structure
	configPath := filepath.Join(cfg.Dir, config.DefaultConfigFile)
	if err := mergeFeeds(configPath, newFeeds, importFeeder); err != nil {
		return fmt.Errorf("merge feeds: %w", err)
	}

	fmt.Printf("Added %d feeds, skipped %d duplicates.\n", len(newFeeds), skipped)
	return nil
}

func extractFeeds(outlines []opmlOutline) []importedFeed {
	var feeds []importedFeed
	for _, o := range outlines {
		u := strings.TrimSpace(o.XMLURL)
		if u != "" && (strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")) {
			label := o.Text
			if label == "" {
				label = o.Title
			}
			feeds = append(feeds, importedFeed{Name: feedName(label, u), URL: u})
		}
		// Recurse into nested outlines (folders)
		feeds = append(feeds, extractFeeds(o.Outlines)...)
	}
	return feeds
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// feedName turns an outline label into a config-friendly name, falling back
// to the URL host.
func feedName(label, rawURL string) string {
	name := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(label), "-"), "-")
	if name != "" {
		return name
	}
	host := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	name = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(host), "-"), "-")
	if name == "" {
		return "feed"
	}
	return name
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + "-" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// mergeFeeds reads config.yaml as a yaml.Node tree, appends newFeeds to the
// top-level feeds sequence, and writes back preserving structure.
func mergeFeeds(configPath string, newFeeds []importedFeed, variant string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}

	feedsNode := findFeedsNode(&doc)
	if feedsNode == nil {
		return errors.New("could not find a feeds list in config.yaml")
	}

	for _, f := range newFeeds {
		feedsNode.Content = append(feedsNode.Content, &yaml.Node{
			Kind: yaml.MappingNode,
			Tag:  "!!map",
			Content: []*yaml.Node{
				scalar("name"), scalar(f.Name),
				scalar("feeder"), scalar(variant),
				scalar("url"), {Kind: yaml.ScalarNode, Tag: "!!str", Value: f.URL, Style: yaml.DoubleQuotedStyle},
			},
		})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(configPath, out, 0o600)
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// findFeedsNode walks the YAML tree to find the top-level feeds sequence.
func findFeedsNode(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return findFeedsNode(doc.Content[0])
	}

	node := findMapValue(doc, "feeds")
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	return node
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
