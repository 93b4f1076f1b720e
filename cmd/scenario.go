package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/catalog"
	"github.com/telhawk-systems/rangehawk/internal/output"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
)

var scenarioCmd = &cobra.Command{
	Use:     "scenario",
	Aliases: []string{"scenarios"},
	Short:   "Inspect scenario definitions",
}

var scenarioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		defs := cat.List()
		summaries := make([]scenarioSummary, 0, len(defs))
		for _, d := range defs {
			summaries = append(summaries, summarize(d))
		}

		return printer.Render(summaries, func(w io.Writer) {
			tbl := output.NewTable("NAME", "DIFFICULTY", "SOURCES", "DOMAINS", "TITLE")
			for _, s := range summaries {
				tbl.AddRow(s.Name, s.Difficulty, strings.Join(s.Sources, ","), joinDomains(s.Domains), s.Title)
			}
			tbl.Render(w)
		})
	},
}

var scenarioShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a scenario's attack story, sources and rubrics",
	Long: `Show how a scenario is built: the attack steps in time order, the log
sources they are written to, the answer key facts and each grading rubric.
Answer key values are not shown; generate an instance to get them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		d, err := cat.Get(args[0])
		if err != nil {
			return err
		}

		detail := describe(d)
		return printer.Render(detail, func(w io.Writer) {
			printer.Info("%s (%s)", d.Title, d.Difficulty)
			if d.Description != "" {
				fmt.Fprintf(w, "%s\n", strings.TrimSpace(d.Description))
			}
			fmt.Fprintf(w, "\nSeed %d, base time %s\n\nAttack steps:\n", d.Parameters.Seed, scenario.FormatTime(d.Parameters.BaseTime))

			steps := output.NewTable("OFFSET", "KIND", "ACTION", "SOURCES", "TECHNIQUES")
			for _, s := range detail.Steps {
				steps.AddRow(s.Offset, s.Kind, s.Action, strings.Join(s.Sources, ","), strings.Join(s.Techniques, ","))
			}
			steps.Render(w)

			fmt.Fprintf(w, "\nSources:\n")
			sources := output.NewTable("SOURCE", "NOISE", "INTERVAL")
			for _, s := range detail.SourceOpts {
				sources.AddRow(s.Name, strconv.Itoa(s.Noise), s.Interval)
			}
			sources.Render(w)

			fmt.Fprintf(w, "\nAnswer key facts: %s\n", strings.Join(detail.Facts, ", "))
			for _, r := range detail.Rubrics {
				fmt.Fprintf(w, "\n%s rubric:\n", r.Domain)
				crit := output.NewTable("CRITERION", "WEIGHT", "CHECK")
				for _, c := range r.Criteria {
					crit.AddRow(c.Name, strconv.Itoa(c.Weight), string(c.Check.Kind))
				}
				crit.Render(w)
			}
		})
	},
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a scenario definition file",
	Long: `Parse a scenario definition, check its pools, narrative and rubrics,
and do a dry-run generation.

Examples:
  rangehawk scenario validate ./scenarios/ransomware.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		return printer.Render(summarize(d), func(w io.Writer) {
			printer.Success("%s is valid (%d steps, %d sources, domains: %s)",
				d.Name, len(d.Narrative), len(d.Sources), joinDomains(d.Domains()))
		})
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.AddCommand(scenarioListCmd, scenarioShowCmd, scenarioValidateCmd)
}

type scenarioSummary struct {
	Name       string          `json:"name"`
	Title      string          `json:"title"`
	Difficulty string          `json:"difficulty"`
	Sources    []string        `json:"sources"`
	Domains    []rubric.Domain `json:"domains"`
}

type stepDetail struct {
	Offset     string   `json:"offset"`
	Kind       string   `json:"kind"`
	Action     string   `json:"action,omitempty"`
	Sources    []string `json:"sources"`
	Techniques []string `json:"techniques,omitempty"`
}

type sourceDetail struct {
	Name     string `json:"name"`
	Noise    int    `json:"noise"`
	Interval string `json:"interval"`
}

type rubricDetail struct {
	Domain   rubric.Domain          `json:"domain"`
	Criteria []rubric.CriterionSpec `json:"criteria"`
}

type scenarioDetail struct {
	scenarioSummary
	Description string         `json:"description,omitempty"`
	Seed        int64          `json:"seed"`
	Steps       []stepDetail   `json:"steps"`
	SourceOpts  []sourceDetail `json:"source_settings"`
	Facts       []string       `json:"facts"`
	Rubrics     []rubricDetail `json:"rubrics"`
}

func summarize(d *catalog.Definition) scenarioSummary {
	s := scenarioSummary{
		Name:       d.Name,
		Title:      d.Title,
		Difficulty: d.Difficulty,
		Domains:    d.Domains(),
	}
	for _, src := range d.SourceNames() {
		s.Sources = append(s.Sources, string(src))
	}
	return s
}

func describe(d *catalog.Definition) scenarioDetail {
	out := scenarioDetail{
		scenarioSummary: summarize(d),
		Description:     strings.TrimSpace(d.Description),
		Seed:            d.Parameters.Seed,
	}

	for _, st := range d.Narrative {
		step := stepDetail{
			Offset:     st.Offset.String(),
			Kind:       string(st.Kind),
			Action:     st.Action,
			Techniques: st.Techniques,
		}
		for _, src := range st.Sources {
			step.Sources = append(step.Sources, string(src))
		}
		out.Steps = append(out.Steps, step)
	}

	for _, src := range d.SourceNames() {
		opts := d.Sources[src]
		noise, interval := opts.Noise, opts.Interval
		if noise <= 0 {
			noise = synth.DefaultNoise
		}
		if interval <= 0 {
			interval = synth.DefaultInterval
		}
		out.SourceOpts = append(out.SourceOpts, sourceDetail{Name: string(src), Noise: noise, Interval: interval.String()})
	}

	for name := range d.AnswerKey {
		out.Facts = append(out.Facts, name)
	}
	sort.Strings(out.Facts)

	for _, domain := range d.Domains() {
		out.Rubrics = append(out.Rubrics, rubricDetail{Domain: domain, Criteria: d.Rubrics[domain]})
	}
	return out
}

func joinDomains(domains []rubric.Domain) string {
	s := make([]string, len(domains))
	for i, d := range domains {
		s[i] = string(d)
	}
	return strings.Join(s, ",")
}
