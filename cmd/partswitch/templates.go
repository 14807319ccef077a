package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/host"
	"github.com/OCAP2/partswitch/internal/registry"
)

var (
	templatesOpts simOptions
	templatesYAML bool
)

// templateView is one row of the templates listing.
type templateView struct {
	Index        int      `yaml:"index"`
	Name         string   `yaml:"name"`
	Title        string   `yaml:"title,omitempty"`
	Source       string   `yaml:"source"`
	Price        float64  `yaml:"price,omitempty"`
	Resource     string   `yaml:"resource,omitempty"`
	Skill        string   `yaml:"skill,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	Resources    []string `yaml:"resources,omitempty"`
	Availability string   `yaml:"availability"`
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the templates of the content database",
	Long: `List the templates loaded from the configured template sources and
whether a host with the given packages and unlocks could use each one.

Examples:
  partswitch templates
  partswitch templates --package CommunityResources --yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := newLoader(templatesOpts.Packages)
		if err != nil {
			return err
		}
		p, err := newPlatform(templatesOpts, "")
		if err != nil {
			return err
		}
		h := host.New("templates", "templates", p)
		reg := loader.Load(config.GetStringSlice("templateSources"), config.GetStringSlice("tagFilter"), h)
		return writeTemplates(cmd.OutOrStdout(), reg, templatesYAML)
	},
}

func init() {
	templatesCmd.Flags().StringArrayVar(&templatesOpts.Packages, "package", nil, "installed package (repeatable)")
	templatesCmd.Flags().StringArrayVar(&templatesOpts.Unlocked, "unlock", nil, "unlocked tech node (repeatable)")
	templatesCmd.Flags().BoolVar(&templatesYAML, "yaml", false, "print YAML instead of a table")
	rootCmd.AddCommand(templatesCmd)
}

func templateViews(reg *registry.Registry) []templateView {
	views := make([]templateView, 0, reg.Len())
	for i, t := range reg.Templates() {
		v := templateView{
			Index:        i,
			Name:         t.Name,
			Title:        t.Title,
			Source:       t.Source,
			Price:        t.Price.Amount,
			Resource:     t.Price.Resource,
			Skill:        t.Price.Skill,
			Tags:         t.Tags,
			Availability: reg.Usable(i).String(),
		}
		for _, r := range t.Resources {
			v.Resources = append(v.Resources, fmt.Sprintf("%s:%g", r.Name, r.MaxAmount))
		}
		views = append(views, v)
	}
	return views
}

func writeTemplates(w io.Writer, reg *registry.Registry, asYAML bool) error {
	views := templateViews(reg)
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tPRICE\tSKILL\tRESOURCES\tAVAILABILITY")
	for _, v := range views {
		price := "-"
		if v.Price != 0 {
			price = fmt.Sprintf("%g %s", v.Price, v.Resource)
		}
		skill := v.Skill
		if skill == "" {
			skill = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.Index, v.Name, price, skill, strings.Join(v.Resources, ","), v.Availability)
	}
	return tw.Flush()
}
